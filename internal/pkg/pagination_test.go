package pkg

import (
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/billweb/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	dbtest "gorm.io/gorm/utils/tests"
)

func historyQuery(q url.Values) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/history?"+q.Encode(), nil)
	return c
}

// dryDB builds statements without a database.
func dryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dbtest.DummyDialector{}, &gorm.Config{})
	if err != nil {
		t.Fatalf("open dummy db: %v", err)
	}
	return db
}

func TestParsePageRequest(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantPage int
		wantSize int
		wantSort string
	}{
		{"defaults", url.Values{}, 1, 20, "id:desc"},
		{"explicit", url.Values{"page": {"3"}, "page_size": {"50"}, "sort": {"route_name:asc"}}, 3, 50, "route_name:asc"},
		{"zero page", url.Values{"page": {"0"}}, 1, 20, "id:desc"},
		{"negative page", url.Values{"page": {"-5"}}, 1, 20, "id:desc"},
		{"page not a number", url.Values{"page": {"last"}}, 1, 20, "id:desc"},
		{"page past offset range", url.Values{"page": {strconv.Itoa(math.MaxInt)}}, maxPage, 20, "id:desc"},
		{"zero page size", url.Values{"page_size": {"0"}}, 1, 20, "id:desc"},
		{"negative page size", url.Values{"page_size": {"-5"}}, 1, 20, "id:desc"},
		{"page size not a number", url.Values{"page_size": {"all"}}, 1, 20, "id:desc"},
		{"page size capped", url.Values{"page_size": {"200"}}, 1, maxPageSize, "id:desc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := ParsePageRequest(historyQuery(tt.query))
			if pr.Page != tt.wantPage || pr.PageSize != tt.wantSize || pr.Sort != tt.wantSort {
				t.Errorf("got page=%d size=%d sort=%q, want %d %d %q",
					pr.Page, pr.PageSize, pr.Sort, tt.wantPage, tt.wantSize, tt.wantSort)
			}
			if offset := (pr.Page - 1) * maxPageSize; offset < 0 {
				t.Errorf("largest offset overflowed: %d", offset)
			}
		})
	}
}

func TestParsePageRequest_Filter(t *testing.T) {
	pr := ParsePageRequest(historyQuery(url.Values{
		"page":             {"2"},
		"sort":             {"id:asc"},
		"route_name__like": {"Bills"},
		"path":             {""},
		"session_id":       {"nav-1"},
	}))

	want := map[string]string{"route_name__like": "Bills", "session_id": "nav-1"}
	if len(pr.Filter) != len(want) {
		t.Fatalf("Filter = %v, want %v", pr.Filter, want)
	}
	for k, v := range want {
		if pr.Filter[k] != v {
			t.Errorf("Filter[%s] = %q, want %q", k, pr.Filter[k], v)
		}
	}
}

func TestFieldNamesAndKeys(t *testing.T) {
	for _, f := range []string{"id", "route_name", "created_at", "_seq"} {
		if !validFieldName.MatchString(f) {
			t.Errorf("%q should be a valid field", f)
		}
	}
	for _, f := range []string{"", "1path", "path;DROP", "route name", "v.path", "route-name"} {
		if validFieldName.MatchString(f) {
			t.Errorf("%q should be rejected", f)
		}
	}

	allowed := []string{"route_name", "path"}
	if !isAllowed("path", allowed) || isAllowed("session_id", allowed) || isAllowed("", allowed) {
		t.Error("isAllowed mismatch")
	}

	keys := map[string][2]string{
		"route_name":   {"route_name", ""},
		"path__like":   {"path", opLike},
		"path__prefix": {"path", opPrefix},
		"__like":       {"", opLike},
	}
	for key, want := range keys {
		if f, op := splitFilterKey(key); f != want[0] || op != want[1] {
			t.Errorf("splitFilterKey(%q) = (%q, %q), want %v", key, f, op, want)
		}
	}
}

func TestSort(t *testing.T) {
	allowed := []string{"id", "route_name", "path", "created_at"}

	tests := []struct {
		name        string
		sort        string
		wantColumns int
	}{
		{"single field", "route_name:asc", 1},
		{"direction case ignored", "id:DESC", 1},
		{"two fields", "route_name:asc,id:desc", 2},
		{"bad pair skipped", "bogus:asc, id:desc", 1},
		{"capped at max fields", "id:asc,route_name:asc,path:asc,created_at:asc", maxSortFields},
		{"not allowed", "session_id:asc", 0},
		{"no direction", "route_name", 0},
		{"empty direction", "route_name:", 0},
		{"unknown direction", "route_name:up", 0},
		{"empty field", ":asc", 0},
		{"injection in field", "id;DROP TABLE visits--:asc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Sort(domain.PageRequest{Sort: tt.sort}, allowed)(dryDB(t))
			c, ok := result.Statement.Clauses["ORDER BY"]
			if !ok {
				if tt.wantColumns != 0 {
					t.Fatalf("no ORDER BY, want %d columns", tt.wantColumns)
				}
				return
			}
			got := len(c.Expression.(clause.OrderBy).Columns)
			if got != tt.wantColumns {
				t.Errorf("ORDER BY columns = %d, want %d", got, tt.wantColumns)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	allowed := []string{"route_name", "path"}

	tests := []struct {
		name      string
		filter    map[string]string
		wantWhere bool
	}{
		{"exact route", map[string]string{"route_name": "issueBills"}, true},
		{"path substring", map[string]string{"path__like": "Bills"}, true},
		{"path prefix", map[string]string{"path__prefix": "/bank"}, true},
		{"one allowed among others", map[string]string{"route_name": "agreePay", "session_id": "nav-1"}, true},
		{"session id not filterable", map[string]string{"session_id": "nav-1"}, false},
		{"like on hidden field", map[string]string{"session_id__like": "nav"}, false},
		{"injection in key", map[string]string{"path;DROP TABLE--": "x"}, false},
		{"spaces in key", map[string]string{"path OR 1=1": "x"}, false},
		{"empty", map[string]string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Filter(domain.PageRequest{Filter: tt.filter}, allowed)(dryDB(t))
			if _, got := result.Statement.Clauses["WHERE"]; got != tt.wantWhere {
				t.Errorf("WHERE applied = %v, want %v", got, tt.wantWhere)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name       string
		offset     int
		limit      int
		wantOffset int
	}{
		{"first page", 0, 10, 0},
		{"third page", 40, 20, 40},
		{"negative offset", -5, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Paginate(tt.offset, tt.limit)(dryDB(t))
			c, ok := result.Statement.Clauses["LIMIT"]
			if !ok {
				t.Fatal("expected LIMIT clause")
			}
			lim := c.Expression.(clause.Limit)
			if lim.Limit == nil || *lim.Limit != tt.limit {
				t.Errorf("limit = %v, want %d", lim.Limit, tt.limit)
			}
			if lim.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", lim.Offset, tt.wantOffset)
			}
		})
	}
}

type scopedVisit struct {
	ID        uint   `gorm:"primaryKey"`
	RouteName string `gorm:"size:64"`
	Path      string `gorm:"size:255"`
}

func TestScopes_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&scopedVisit{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rows := []scopedVisit{
		{RouteName: "bankInterface", Path: "/bank/bankInterface"},
		{RouteName: "issueBills", Path: "/bank/issueBills"},
		{RouteName: "companyInterface", Path: "/company/companyInterface"},
		{RouteName: "odd", Path: "/bank_x/100%"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	allowed := []string{"id", "route_name", "path"}
	tests := []struct {
		name   string
		filter map[string]string
		sort   string
		offset int
		limit  int
		want   []string
	}{
		{"prefix", map[string]string{"path__prefix": "/bank/"}, "id:asc", 0, 10, []string{"bankInterface", "issueBills"}},
		{"literal underscore", map[string]string{"path__like": "_"}, "id:asc", 0, 10, []string{"odd"}},
		{"literal percent", map[string]string{"path__like": "100%"}, "id:asc", 0, 10, []string{"odd"}},
		{"sorted by route", nil, "route_name:asc", 0, 10, []string{"bankInterface", "companyInterface", "issueBills", "odd"}},
		{"second page of two", nil, "id:asc", 2, 2, []string{"companyInterface", "odd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := domain.PageRequest{Sort: tt.sort, Filter: tt.filter}
			var got []scopedVisit
			err := db.Scopes(Filter(req, allowed), Sort(req, allowed), Paginate(tt.offset, tt.limit)).Find(&got).Error
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows %+v, want %v", len(got), got, tt.want)
			}
			for i, name := range tt.want {
				if got[i].RouteName != name {
					t.Errorf("row %d = %s, want %s", i, got[i].RouteName, name)
				}
			}
		})
	}
}
