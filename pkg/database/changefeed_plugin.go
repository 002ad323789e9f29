package database

import (
	"log"
	"reflect"
	"time"

	"realtime-chat-be/pkg/changefeed"

	"gorm.io/gorm"
)

// ChangeFeedPlugin publishes an InsertEvent for every row created in a registered table.
// Events are emitted once the insert has committed; a publish failure is logged and does not
// fail the insert.
type ChangeFeedPlugin struct {
	publisher changefeed.Publisher
	tables    map[string]struct{}
	now       func() time.Time
}

func NewChangeFeedPlugin(publisher changefeed.Publisher, tables ...string) *ChangeFeedPlugin {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	return &ChangeFeedPlugin{
		publisher: publisher,
		tables:    set,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *ChangeFeedPlugin) Name() string {
	return "changefeed"
}

func (p *ChangeFeedPlugin) Initialize(db *gorm.DB) error {
	return db.Callback().Create().After("gorm:commit_or_rollback_transaction").Register("changefeed:emit", p.emit)
}

func (p *ChangeFeedPlugin) emit(db *gorm.DB) {
	if db.Error != nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	table := db.Statement.Table
	if _, ok := p.tables[table]; !ok {
		return
	}

	rows := insertedRows(db.Statement.ReflectValue)
	at := p.now()
	for _, row := range rows {
		ev, err := changefeed.NewInsertEvent(table, row, at)
		if err != nil {
			log.Printf("[WARN] changefeed: %v", err)
			continue
		}
		if err := p.publisher.Publish(db.Statement.Context, ev); err != nil {
			log.Printf("[WARN] changefeed: failed to publish %s insert: %v", table, err)
		}
	}
}

func insertedRows(rv reflect.Value) []interface{} {
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		rows := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if elem.IsValid() {
				rows = append(rows, elem.Interface())
			}
		}
		return rows
	case reflect.Struct:
		return []interface{}{rv.Interface()}
	default:
		return nil
	}
}
