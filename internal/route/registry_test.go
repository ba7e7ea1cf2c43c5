package route

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/view"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mustBuild(t *testing.T) *Registry {
	t.Helper()
	r, err := Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return r
}

func TestBuild_DeclaredTable(t *testing.T) {
	want := [][2]string{
		{"/queryHistory", "queryHistory"},
		{"/beginInterface", "beginInterface"},
		{"/bank/bankInterface", "bankInterface"},
		{"/bank/checkAllBills", "checkAllBills"},
		{"/bank/issueBills", "issueBills"},
		{"/bank/dealWaitDiscountBills", "dealWaitDiscountBills"},
		{"/company/companyInterface", "companyInterface"},
		{"/company/dealWaitPayBills", "dealWaitPayBills"},
		{"/company/checkAllWaitEndorseBills", "checkAllWaitEndorseBills"},
		{"/company/checkAllPayBills", "checkAllPayBills"},
		{"/company/checkAllAcceptBills", "checkAllAcceptBills"},
		{"/company/checkAllHoldBills", "checkAllHoldBills"},
	}

	entries := mustBuild(t).Entries()
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Path != w[0] || e.Name != w[1] {
			t.Errorf("entry %d = (%q, %q), want (%q, %q)", i, e.Path, e.Name, w[0], w[1])
		}
		// Every component in this table shares its route name.
		if e.Component == nil || e.Component.Name != w[1] {
			t.Errorf("entry %d component = %v, want %q", i, e.Component, w[1])
		}
	}
}

func TestBuild_UniquePathsAndNames(t *testing.T) {
	paths := make(map[string]bool)
	names := make(map[string]bool)
	for _, e := range mustBuild(t).Entries() {
		if paths[e.Path] {
			t.Errorf("duplicate path %q", e.Path)
		}
		paths[e.Path] = true
		if e.Name == "" {
			continue
		}
		if names[e.Name] {
			t.Errorf("duplicate name %q", e.Name)
		}
		names[e.Name] = true
	}
}

func TestBuild_Idempotent(t *testing.T) {
	a := mustBuild(t).Entries()
	b := mustBuild(t).Entries()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("rebuilding the table produced a different sequence")
	}
	if !reflect.DeepEqual(a, Table()) {
		t.Fatal("registry entries differ from Table()")
	}
}

func TestNew_CopiesInput(t *testing.T) {
	in := Table()
	r, err := New(in)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	in[0].Path = "/mutated"
	if _, ok := r.Match("/mutated"); ok {
		t.Fatal("registry must not alias the caller's slice")
	}

	out := r.Entries()
	out[0].Name = "mutated"
	if _, ok := r.Lookup("mutated"); ok {
		t.Fatal("Entries() must return a copy")
	}
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		entries   []Entry
		checkFn   func(error) bool
		wantInErr string
	}{
		{
			name: "duplicate path",
			entries: []Entry{
				{Path: "/bank/issueBills", Name: "issueBills", Component: view.IssueBills},
				{Path: "/bank/issueBills", Name: "issueBills2", Component: view.CheckAllBills},
			},
			checkFn:   domain.IsAlreadyExists,
			wantInErr: "duplicate route path",
		},
		{
			name: "duplicate path differing in case and trailing slash",
			entries: []Entry{
				{Path: "/bank/issueBills", Component: view.IssueBills},
				{Path: "/Bank/IssueBills/", Component: view.CheckAllBills},
			},
			checkFn:   domain.IsAlreadyExists,
			wantInErr: "index 1",
		},
		{
			name: "duplicate name",
			entries: []Entry{
				{Path: "/a", Name: "same", Component: view.IssueBills},
				{Path: "/b", Name: "same", Component: view.CheckAllBills},
			},
			checkFn:   domain.IsAlreadyExists,
			wantInErr: "duplicate route name",
		},
		{
			name:      "empty path",
			entries:   []Entry{{Path: "", Component: view.IssueBills}},
			checkFn:   domain.IsValidation,
			wantInErr: "path: required",
		},
		{
			name:      "relative path",
			entries:   []Entry{{Path: "bank/issueBills", Component: view.IssueBills}},
			checkFn:   domain.IsValidation,
			wantInErr: "routepath",
		},
		{
			name:      "path with query",
			entries:   []Entry{{Path: "/bank/issueBills?x=1", Component: view.IssueBills}},
			checkFn:   domain.IsValidation,
			wantInErr: "routepath",
		},
		{
			name:      "path with wildcard",
			entries:   []Entry{{Path: "/bank/:id", Component: view.IssueBills}},
			checkFn:   domain.IsValidation,
			wantInErr: "routepath",
		},
		{
			name:      "non alphanumeric name",
			entries:   []Entry{{Path: "/a", Name: "issue-bills", Component: view.IssueBills}},
			checkFn:   domain.IsValidation,
			wantInErr: "name: alphanum",
		},
		{
			name:      "missing component",
			entries:   []Entry{{Path: "/a", Name: "a"}},
			checkFn:   domain.IsValidation,
			wantInErr: "component: required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.checkFn(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantInErr)
			}
		})
	}
}

func TestNew_UnnamedEntriesDoNotCollide(t *testing.T) {
	r, err := New([]Entry{
		{Path: "/a", Component: view.IssueBills},
		{Path: "/b", Component: view.CheckAllBills},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Lookup(""); ok {
		t.Error("empty name must not resolve")
	}
}

func TestNew_Empty(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if r.Len() != 0 || len(r.Entries()) != 0 {
		t.Fatal("expected an empty registry")
	}
}

func TestMatch(t *testing.T) {
	r := mustBuild(t)

	tests := []struct {
		path     string
		wantOK   bool
		wantComp *view.Component
	}{
		{"/bank/issueBills", true, view.IssueBills},
		{"/company/checkAllHoldBills", true, view.CheckAllHoldBills},
		{"/queryHistory", true, view.QueryHistory},
		{"/bank/issueBills/", true, view.IssueBills},
		{"/BANK/ISSUEBILLS", true, view.IssueBills},
		{"/unknown", false, nil},
		{"/bank", false, nil},
		{"/bank/issueBills/extra", false, nil},
		{"/", false, nil},
		{"", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, ok := r.Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if ok && e.Component != tt.wantComp {
				t.Errorf("Match(%q) component = %v, want %v", tt.path, e.Component, tt.wantComp)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	r := mustBuild(t)

	p, err := r.Resolve("dealWaitDiscountBills")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p != "/bank/dealWaitDiscountBills" {
		t.Errorf("Resolve() = %q", p)
	}

	_, err = r.Resolve("nope")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestURL(t *testing.T) {
	r := mustBuild(t)

	tests := []struct {
		base string
		want string
	}{
		{"", "/company/checkAllPayBills"},
		{"/", "/company/checkAllPayBills"},
		{"/app", "/app/company/checkAllPayBills"},
		{"/app/", "/app/company/checkAllPayBills"},
	}
	for _, tt := range tests {
		got, err := r.URL("checkAllPayBills", tt.base)
		if err != nil {
			t.Fatalf("URL(%q) error: %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("URL(base=%q) = %q, want %q", tt.base, got, tt.want)
		}
	}

	if _, err := r.URL("missing", "/app"); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestInGroup(t *testing.T) {
	r := mustBuild(t)

	bank := r.InGroup(view.GroupBank)
	if len(bank) != 5 {
		t.Fatalf("bank group has %d entries, want 5", len(bank))
	}
	if bank[0].Name != "queryHistory" || bank[1].Name != "bankInterface" {
		t.Errorf("bank group order = %q, %q", bank[0].Name, bank[1].Name)
	}
	if n := len(r.InGroup(view.GroupCompany)); n != 6 {
		t.Errorf("company group has %d entries, want 6", n)
	}
	if n := len(r.InGroup(view.GroupShared)); n != 1 {
		t.Errorf("shared group has %d entries, want 1", n)
	}
}

func componentWriter(e Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, e.Component.Name)
	}
}

func TestInstall_ActivatesComponents(t *testing.T) {
	r := mustBuild(t)
	engine := gin.New()
	if err := r.Install(engine, componentWriter); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if !r.Installed() {
		t.Fatal("Installed() should be true")
	}

	for _, e := range r.Entries() {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, e.Path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", e.Path, w.Code)
			continue
		}
		if w.Body.String() != e.Component.Name {
			t.Errorf("GET %s activated %q, want %q", e.Path, w.Body.String(), e.Component.Name)
		}
	}
}

func TestInstall_Scenarios(t *testing.T) {
	r := mustBuild(t)
	engine := gin.New()
	if err := r.Install(engine, componentWriter); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/bank/issueBills", http.StatusOK, "issueBills"},
		{"/company/checkAllHoldBills", http.StatusOK, "checkAllHoldBills"},
		{"/unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantCode {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.wantCode)
		}
		if tt.wantBody != "" && w.Body.String() != tt.wantBody {
			t.Errorf("GET %s body = %q, want %q", tt.path, w.Body.String(), tt.wantBody)
		}
	}
}

func TestInstall_HEAD(t *testing.T) {
	r := mustBuild(t)
	engine := gin.New()
	if err := r.Install(engine, componentWriter); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/beginInterface", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d", w.Code)
	}
}

func TestInstall_OnlyOnce(t *testing.T) {
	r := mustBuild(t)
	if err := r.Install(gin.New(), componentWriter); err != nil {
		t.Fatalf("first Install() error: %v", err)
	}
	err := r.Install(gin.New(), componentWriter)
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("second Install() = %v, want ErrAlreadyInstalled", err)
	}
}

func TestInstall_InvalidArguments(t *testing.T) {
	r := mustBuild(t)
	if err := r.Install(nil, componentWriter); err == nil {
		t.Error("expected error for nil router")
	}
	if err := r.Install(gin.New(), nil); err == nil {
		t.Error("expected error for nil activator")
	}
	if err := r.Install(gin.New(), func(Entry) gin.HandlerFunc { return nil }); err == nil {
		t.Error("expected error for nil handler")
	}
	if r.Installed() {
		t.Fatal("failed installs must not mark the registry installed")
	}
	if err := r.Install(gin.New(), componentWriter); err != nil {
		t.Fatalf("Install() after failures error: %v", err)
	}
}

func TestInstall_UnderGroup(t *testing.T) {
	r := mustBuild(t)
	engine := gin.New()
	if err := r.Install(engine.Group("/app"), componentWriter); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/company/dealWaitPayBills", nil))
	if w.Code != http.StatusOK || w.Body.String() != "dealWaitPayBills" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/company/dealWaitPayBills", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("path outside base should not match, got %d", w.Code)
	}
}

func TestCurrent(t *testing.T) {
	r := mustBuild(t)
	engine := gin.New()

	var seen Entry
	var seenOK bool
	engine.Use(func(c *gin.Context) {
		c.Next()
		seen, seenOK = Current(c)
	})
	if err := r.Install(engine, componentWriter); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/company/checkAllAcceptBills", nil))
	if !seenOK || seen.Name != "checkAllAcceptBills" {
		t.Fatalf("Current() = %+v, %v", seen, seenOK)
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if seenOK {
		t.Fatalf("Current() on an undeclared path = %+v", seen)
	}
}
