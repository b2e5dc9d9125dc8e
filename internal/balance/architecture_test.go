package balance

import (
	"testing"

	"normative/testutil"
)

func TestBalanceDependsOnFacadesOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InfraImport, testutil.DriverImport),
		"balancing reads cohorts through blob.Store and records through ledger.Store")
}
