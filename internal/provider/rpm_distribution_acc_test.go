package provider_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/pulp/terraform-provider-pulp/internal/acctest"
)

func TestAccRpmDistribution_Lifecycle(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)
	repoHref := mock.SeedRepository("baseos")
	pubHref := mock.SeedPublication(repoHref)
	cgHref := mock.SeedContentGuard("internal")

	const addr = "pulp_rpm_distribution.test"

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			// Create serving a repository.
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name       = "d1"
  base_path  = "rhel/9/baseos"
  repository = "baseos"
}
`,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttrSet(addr, "id"),
					resource.TestCheckResourceAttrPair(addr, "id", addr, "pulp_href"),
					resource.TestCheckResourceAttr(addr, "repository", "baseos"),
					resource.TestCheckResourceAttr(addr, "repository_href", repoHref),
					resource.TestCheckNoResourceAttr(addr, "publication"),
					resource.TestCheckResourceAttrSet(addr, "base_url"),
					checkRemote(mock, "d1", "repository", repoHref),
				),
			},
			// Import by name.
			{
				ResourceName:                         addr,
				ImportState:                          true,
				ImportStateId:                        "d1",
				ImportStateVerify:                    true,
				ImportStateVerifyIdentifierAttribute: "name",
			},
			// Switch to a fixed publication; the repository is cleared.
			{
				Config: acctest.ProviderConfig(mock) + fmt.Sprintf(`
resource "pulp_rpm_distribution" "test" {
  name        = "d1"
  base_path   = "rhel/9/baseos-frozen"
  publication = %q
}
`, pubHref),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr(addr, "publication", pubHref),
					resource.TestCheckResourceAttr(addr, "base_path", "rhel/9/baseos-frozen"),
					resource.TestCheckNoResourceAttr(addr, "repository"),
					resource.TestCheckNoResourceAttr(addr, "repository_href"),
					checkRemote(mock, "d1", "publication", pubHref),
					checkRemote(mock, "d1", "repository", nil),
				),
			},
			// Guard the content.
			{
				Config: acctest.ProviderConfig(mock) + fmt.Sprintf(`
resource "pulp_rpm_distribution" "test" {
  name          = "d1"
  base_path     = "rhel/9/baseos-frozen"
  publication   = %q
  content_guard = "internal"
}
`, pubHref),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr(addr, "content_guard", "internal"),
					resource.TestCheckResourceAttr(addr, "content_guard_href", cgHref),
					checkRemote(mock, "d1", "content_guard", cgHref),
				),
			},
			// An empty content guard clears it.
			{
				Config: acctest.ProviderConfig(mock) + fmt.Sprintf(`
resource "pulp_rpm_distribution" "test" {
  name          = "d1"
  base_path     = "rhel/9/baseos-frozen"
  publication   = %q
  content_guard = ""
}
`, pubHref),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr(addr, "content_guard", ""),
					resource.TestCheckNoResourceAttr(addr, "content_guard_href"),
					checkRemote(mock, "d1", "content_guard", nil),
				),
			},
		},
		CheckDestroy: func(_ *terraform.State) error {
			if e := mock.FindByName(acctest.DistributionsPath, "d1"); e != nil {
				return fmt.Errorf("distribution d1 still exists: %v", e)
			}
			return nil
		},
	})
}

func TestAccRpmDistribution_AsyncTasks(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)
	mock.Async = true
	mock.SeedRepository("appstream")

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name       = "async"
  base_path  = "rhel/9/appstream"
  repository = "appstream"
}
`,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttrSet("pulp_rpm_distribution.test", "pulp_href"),
					resource.TestCheckResourceAttr("pulp_rpm_distribution.test", "repository", "appstream"),
				),
			},
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name       = "async"
  base_path  = "rhel/9/appstream-new"
  repository = "appstream"
}
`,
				Check: checkRemote(mock, "async", "base_path", "rhel/9/appstream-new"),
			},
		},
	})
}

func TestAccRpmDistribution_AdoptsAndRecreates(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)
	existing := mock.SeedDistribution(map[string]any{"name": "legacy", "base_path": "old/path"})

	config := acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name      = "legacy"
  base_path = "new/path"
}
`

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			// Planning previews the adoption without touching Pulp.
			{
				Config:             config,
				PlanOnly:           true,
				ExpectNonEmptyPlan: true,
			},
			// An existing entity with the same name is updated, not duplicated.
			{
				PreConfig: func() {
					if n := mock.Requests("PATCH") + mock.Requests("POST") + mock.Requests("DELETE"); n != 0 {
						t.Errorf("planning issued %d mutating requests", n)
					}
				},
				Config: config,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("pulp_rpm_distribution.test", "pulp_href", existing),
					checkRemote(mock, "legacy", "base_path", "new/path"),
				),
			},
			// Deleted outside Terraform: the next apply creates it again.
			{
				PreConfig: func() { mock.Remove(existing) },
				Config:    config,
				Check: func(_ *terraform.State) error {
					e := mock.FindByName(acctest.DistributionsPath, "legacy")
					if e == nil {
						return fmt.Errorf("distribution was not recreated")
					}
					if e["pulp_href"] == existing {
						return fmt.Errorf("expected a new href, got the removed one")
					}
					return nil
				},
			},
		},
	})
}

func TestAccRpmDistribution_Errors(t *testing.T) {
	acctest.SetupTest(t)
	mock := acctest.NewMockPulpServer(t)

	resource.Test(t, resource.TestCase{
		ProtoV6ProviderFactories: acctest.TestProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name       = "d1"
  base_path  = "a/b"
  repository = "does-not-exist"
}
`,
				ExpectError: regexp.MustCompile(`Entity Not Found`),
			},
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name        = "d1"
  base_path   = "a/b"
  repository  = "baseos"
  publication = "/pulp/api/v3/publications/rpm/rpm/1/"
}
`,
				ExpectError: regexp.MustCompile(`(?s)Invalid Attribute Combination`),
			},
			{
				Config: acctest.ProviderConfig(mock) + `
resource "pulp_rpm_distribution" "test" {
  name      = "d1"
  base_path = "/absolute"
}
`,
				ExpectError: regexp.MustCompile(`must be relative`),
			},
		},
	})

	if n := mock.Requests("POST"); n != 0 {
		t.Errorf("failed configurations issued %d create requests", n)
	}
}

// checkRemote asserts a field of the named distribution on the mock server.
func checkRemote(mock *acctest.MockPulpServer, name, field string, want any) resource.TestCheckFunc {
	return func(_ *terraform.State) error {
		e := mock.FindByName(acctest.DistributionsPath, name)
		if e == nil {
			return fmt.Errorf("distribution %q not found on server", name)
		}
		if got := e[field]; got != want {
			return fmt.Errorf("distribution %q field %s = %v, want %v", name, field, got, want)
		}
		return nil
	}
}
