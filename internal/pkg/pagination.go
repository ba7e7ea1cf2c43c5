package pkg

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/billweb/internal/domain"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	defaultSort     = "id:desc"
	maxSortFields   = 3
	// maxPage keeps (page-1)*maxPageSize within int.
	maxPage = math.MaxInt / maxPageSize
)

// Filter key suffixes selecting a match operator. Keys without a suffix
// are exact matches.
const (
	opLike   = "__like"
	opPrefix = "__prefix"
)

// reservedParams are query parameters consumed by pagination and sorting.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"sort":      true,
}

var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ParsePageRequest extracts pagination, sorting, and filtering parameters
// from the query string. Out-of-range values fall back to defaults.
func ParsePageRequest(c *gin.Context) domain.PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if page < 1 {
		page = defaultPage
	}
	page = min(page, maxPage)

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	sort := c.DefaultQuery("sort", defaultSort)

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     sort,
		Filter:   filter,
	}
}

// Paginate returns a GORM scope applying OFFSET and LIMIT, as handed to a
// pagination slice callback.
func Paginate(offset, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(max(offset, 0)).Limit(limit)
	}
}

// Sort returns a GORM scope applying ORDER BY from req.Sort, a comma
// separated list of field:direction pairs such as "route_name:asc,id:desc".
// Pairs that are malformed, name a field outside allowed, or exceed
// maxSortFields are ignored.
func Sort(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		applied := 0
		for pair := range strings.SplitSeq(req.Sort, ",") {
			if applied == maxSortFields {
				break
			}
			field, direction, ok := parseSortPair(pair)
			if !ok || !isAllowed(field, allowed) {
				continue
			}
			db = db.Order(field + " " + direction)
			applied++
		}
		return db
	}
}

func parseSortPair(pair string) (field, direction string, ok bool) {
	field, direction, found := strings.Cut(pair, ":")
	if !found {
		return "", "", false
	}
	field = strings.TrimSpace(field)
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" && direction != "desc" {
		return "", "", false
	}
	if !validFieldName.MatchString(field) {
		return "", "", false
	}
	return field, direction, true
}

// Filter returns a GORM scope applying WHERE conditions from req.Filter.
// Keys outside allowed are ignored. A "__like" suffix matches a substring
// and "__prefix" a leading substring; wildcards in the value are escaped.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			field, op := splitFilterKey(key)
			if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
				continue
			}
			switch op {
			case opLike:
				db = db.Where(field+` LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(value)+"%")
			case opPrefix:
				db = db.Where(field+` LIKE ? ESCAPE '\'`, likeEscaper.Replace(value)+"%")
			default:
				db = db.Where(field+" = ?", value)
			}
		}
		return db
	}
}

func splitFilterKey(key string) (field, op string) {
	for _, suffix := range []string{opLike, opPrefix} {
		if f, ok := strings.CutSuffix(key, suffix); ok {
			return f, suffix
		}
	}
	return key, ""
}

func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
