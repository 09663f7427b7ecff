package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hurou927/dbmeta/internal/dialect"
)

func TestVerb(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"select * from t", "SELECT"},
		{"  \n\tUpdate t set a = 1", "UPDATE"},
		{"-- comment\nDELETE FROM t", "DELETE"},
		{"/* block */ insert into t values (1)", "INSERT"},
		{"/* a */ -- b\n with x as (select 1) select * from x", "WITH"},
		{"-- only a comment", ""},
		{"", ""},
		{"select(1)", "SELECT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Verb(tt.sql), tt.sql)
	}
}

func TestUpdatingVerbs_Union(t *testing.T) {
	r := newBareRegistry(t)
	r.Set("workbench.db.updatingcommands", "insert,update")
	r.Set("workbench.db.acme.updatingcommands", "copy,-update,INSERT")

	s := r.Settings("acme", dialect.Version{})
	assert.Equal(t, []string{"INSERT", "UPDATE", "COPY"}, s.UpdatingVerbs())
	assert.True(t, s.IsUpdatingStatement("copy t from stdin"))
	assert.True(t, s.IsUpdatingStatement("UPDATE t SET a=1"))
	assert.False(t, s.IsUpdatingStatement("select 1"))
}

func TestMaxRowsVerbs(t *testing.T) {
	r := newBareRegistry(t)
	r.Set("workbench.db.maxrows.verbs", "SELECT,WITH,SHOW")
	r.Set("workbench.db.acme.maxrows.verbs", "-SHOW,VALUES")

	s := r.Settings("acme", dialect.Version{})
	assert.Equal(t, []string{"SELECT", "WITH", "VALUES"}, s.MaxRowsVerbs())
	assert.True(t, s.ApplyMaxRows("select * from t"))
	assert.False(t, s.ApplyMaxRows("show tables"))
	assert.False(t, s.ApplyMaxRows("delete from t"))
}

func TestMaxRowsVerbs_Wildcard(t *testing.T) {
	r := newBareRegistry(t)
	r.Set("workbench.db.maxrows.verbs", "SELECT")
	r.Set("workbench.db.acme.maxrows.verbs", "*")

	s := r.Settings("acme", dialect.Version{})
	assert.True(t, s.ApplyMaxRows("delete from t"))
	assert.True(t, s.ApplyMaxRows("anything"))
}
