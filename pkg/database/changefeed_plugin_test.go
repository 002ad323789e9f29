package database

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	Id string
}

func TestInsertedRows(t *testing.T) {
	single := &row{Id: "a"}
	batch := []*row{{Id: "a"}, nil, {Id: "b"}}

	assert.Equal(t, []interface{}{row{Id: "a"}}, insertedRows(reflect.ValueOf(single)))
	assert.Equal(t, []interface{}{row{Id: "a"}, row{Id: "b"}}, insertedRows(reflect.ValueOf(&batch)))
	assert.Empty(t, insertedRows(reflect.ValueOf(42)))
}
