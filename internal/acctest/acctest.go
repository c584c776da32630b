package acctest

import (
	"fmt"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"

	"github.com/pulp/terraform-provider-pulp/internal/journal"
	"github.com/pulp/terraform-provider-pulp/internal/provider"
)

// TestProtoV6ProviderFactories is a map of provider factory functions
// suitable for use with the terraform-plugin-testing framework.
var TestProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"pulp": providerserver.NewProtocol6WithError(provider.New("test")()),
}

// SetupTest resets the global memory journal registry so each test starts
// with a clean slate.
func SetupTest(t *testing.T) {
	t.Helper()
	journal.ResetMemoryStores()
	t.Cleanup(func() {
		journal.ResetMemoryStores()
	})
}

// ProviderConfig returns an HCL snippet that points the pulp provider at the
// mock server.
func ProviderConfig(m *MockPulpServer) string {
	return fmt.Sprintf(`
provider "pulp" {
  base_url             = %q
  username             = "admin"
  password             = "password"
  max_retries          = 0
  task_timeout_seconds = 5
}
`, m.URL())
}

// ProviderConfigWithJournal is ProviderConfig plus a memory journal named
// journalName.
func ProviderConfigWithJournal(m *MockPulpServer, journalName string) string {
	return fmt.Sprintf(`
provider "pulp" {
  base_url    = %q
  username    = "admin"
  password    = "password"
  max_retries = 0

  journal {
    type   = "memory"
    name   = %q
    retain = 5
  }
}
`, m.URL(), journalName)
}
