// Package all wires the built-in storage backends into the storage factory.
// Importing it (as a blank import) runs each backend's init, which registers
// its factory and DDL bootstrapper:
//
//   - "postgres" (featurepipe/internal/storage/postgres)
//   - "sqlite"   (featurepipe/internal/storage/sqlite)
//   - "mssql"    (featurepipe/internal/storage/mssql)
//
// A binary that needs only one backend can import that package instead.
package all

import (
	_ "featurepipe/internal/storage/mssql"
	_ "featurepipe/internal/storage/postgres"
	_ "featurepipe/internal/storage/sqlite"
)
