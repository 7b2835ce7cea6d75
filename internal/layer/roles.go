package layer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// Roles are the role-column values of one feature as display text.
type Roles struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Owner    string `json:"owner"`
	Identity string `json:"identity"`
	Date     string `json:"date"`
	Status   string `json:"status"`
}

// ResolveRoles reads the role columns of f. Unset or missing columns give
// an empty string, except the id which falls back to the feature id.
func ResolveRoles(f *surface.Feature, cols catalog.Columns) Roles {
	r := Roles{
		ID:       column(f, cols.ID),
		Text:     column(f, cols.Text),
		Owner:    column(f, cols.Owner),
		Identity: column(f, cols.Identity),
		Date:     column(f, cols.Date),
		Status:   column(f, cols.Status),
	}
	if r.ID == "" {
		r.ID = f.ID
	}
	return r
}

func column(f *surface.Feature, key string) string {
	if key == "" {
		return ""
	}
	return Text(f.Get(key))
}

// Text formats a scalar attribute value for display.
func Text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
