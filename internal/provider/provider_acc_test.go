package provider_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/pulp/terraform-provider-pulp/internal/acctest"
	"github.com/pulp/terraform-provider-pulp/internal/journal"
)

func TestAccProvider_JournalRecordsChanges(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)

	const journalName = "changes"
	history := func(want int) resource.TestCheckFunc {
		return func(_ *terraform.State) error {
			j := journal.New(journal.GetOrCreateMemoryStore(journalName), 0, "test")
			records, err := j.History(context.Background(), "rpm repository", map[string]any{"name": "journaled"})
			if err != nil {
				return err
			}
			if len(records) != want {
				return fmt.Errorf("journal holds %d records, want %d", len(records), want)
			}
			return nil
		}
	}

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfigWithJournal(mock, journalName) + `
resource "pulp_rpm_repository" "test" {
  name = "journaled"
}
`,
				Check: history(1),
			},
			{
				Config: acctest.ProviderConfigWithJournal(mock, journalName) + `
resource "pulp_rpm_repository" "test" {
  name        = "journaled"
  description = "now described"
}
`,
				Check: history(2),
			},
		},
	})
}

func TestAccProvider_InvalidJournal(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: fmt.Sprintf(`
provider "pulp" {
  base_url = %q

  journal {
    type = "s3"
  }
}

resource "pulp_rpm_repository" "test" {
  name = "never"
}
`, mock.URL()),
				ExpectError: regexp.MustCompile(`requires bucket`),
			},
		},
	})
}
