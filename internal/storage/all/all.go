// Package all registers every storage backend with the factory. Binaries
// blank-import it so the configured kind decides the backend at runtime.
package all

import (
	_ "dataprofiler/internal/storage/mssql"
	_ "dataprofiler/internal/storage/postgres"
	_ "dataprofiler/internal/storage/sqlite"
)
