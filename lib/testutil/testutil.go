package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"cocos-collector/lib/sqliteutil"
	"cocos-collector/lib/telemetry"

	"github.com/mazen160/go-random"

	_ "modernc.org/sqlite"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
}

type ServiceResult struct {
	DB *sql.DB
}

func SetupService(t testing.TB, params ServiceParams) (ServiceResult, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	var sqlite *sql.DB
	if params.DbSchema != "" {
		var err error
		sqlite, err = sqliteutil.OpenDB(params.DbSchema, dbpath)
		if err != nil {
			t.Fatal(err)
		}
	}

	return ServiceResult{
		DB: sqlite,
	}, cleanup
}

// RandomLabel generates a short random lowercase identifier for test
// fixtures (temp dirs, source labels) so runs don't collide.
func RandomLabel(t testing.TB) string {
	s, err := random.String(8)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
