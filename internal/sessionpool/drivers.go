package sessionpool

// Blank imports register each backend's database/sql driver so Pool can
// dispatch on Descriptor.Type without the caller needing to know which
// driver package backs a given kind.
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	_ "github.com/alexbrainman/odbc"
)
