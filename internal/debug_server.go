package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only view over the raw store. Meant
// for local debugging; never expose it publicly.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper understands the store's key families:
// msg:{room}:{unixnano}:{uuid}, room:{id} and macro:{user}.
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	switch parts[0] {
	case "msg":
		if len(parts) >= 4 {
			row.Type = "MESSAGE"
			row.Namespace = parts[1]
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.EntityID = shorten(parts[3])
			row.Detail = bodyPreview(val)
		}
	case "room":
		if len(parts) >= 2 {
			row.Type = "ROOM"
			row.Namespace = parts[1]
			row.EntityID = shorten(parts[1])
			row.Detail = bodyPreview(val)
		}
	case "macro":
		if len(parts) >= 2 {
			row.Type = "MACRO"
			row.Namespace = parts[1]
			row.EntityID = shorten(parts[1])
		}
	}
	return row
}

func shorten(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func bodyPreview(val []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(val, &decoded); err != nil {
		return "Size: " + strconv.Itoa(len(val)) + " bytes"
	}
	if body, ok := decoded["body"].(string); ok {
		return body
	}
	if title, ok := decoded["title"].(string); ok {
		return title
	}
	return "Size: " + strconv.Itoa(len(val)) + " bytes"
}
