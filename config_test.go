package warmcache

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testPolicyYAML = `
defaults:
  batchSize: 250
  maxRetries: 4
  maxParallel: 3
  queryTimeout: 15s
  writeTimeout: 2s
  gracePeriod: 5m

categories:
  catalog:
    table: products
    idColumn: sku
    popularityColumn: views
    payload: [name, price]
    required: [name]
    baseTTL: 1h
    popularityBonus: 1m
    maxTTL: 6h
    minWarmed: 1000
  reference:
    table: ref_codes
    idColumn: code
    payload: [label]
    baseTTL: 24h

validation:
  minTotalKeys: 500
  maxFragmentation: 1.8
  maxSampleBytes: 65536
`

func writePolicy(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warmcache.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, testPolicyYAML))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	if p.BatchSize != 250 || p.MaxRetries != 4 || p.MaxParallel != 3 {
		t.Fatalf("defaults = {%d %d %d}, want {250 4 3}", p.BatchSize, p.MaxRetries, p.MaxParallel)
	}
	if p.QueryTimeout != 15*time.Second || p.WriteTimeout != 2*time.Second || p.GracePeriod != 5*time.Minute {
		t.Fatalf("durations = {%v %v %v}", p.QueryTimeout, p.WriteTimeout, p.GracePeriod)
	}
	if p.MaxSampleBytes != 65536 {
		t.Fatalf("maxSampleBytes = %d, want 65536", p.MaxSampleBytes)
	}

	cat, ok := p.Categories[CategoryCatalog]
	if !ok {
		t.Fatal("catalog category missing")
	}
	if cat.Source.Table != "products" || cat.Source.IDColumn != "sku" || cat.Source.PopularityColumn != "views" {
		t.Fatalf("catalog source = %+v", cat.Source)
	}
	wantTTL := TTLPolicy{Base: time.Hour, Bonus: time.Minute, Max: 6 * time.Hour}
	if cat.TTL != wantTTL {
		t.Fatalf("catalog ttl = %+v, want %+v", cat.TTL, wantTTL)
	}

	ref := p.Categories[CategoryReference]
	// maxTTL omitted: ceiling defaults to the base.
	if ref.TTL.Max != 24*time.Hour || ref.TTL.Base != 24*time.Hour {
		t.Fatalf("reference ttl = %+v", ref.TTL)
	}

	if p.Thresholds.MinTotalKeys != 500 || p.Thresholds.MaxFragmentation != 1.8 {
		t.Fatalf("thresholds = %+v", p.Thresholds)
	}
	wantMin := map[Category]int64{CategoryCatalog: 1000}
	if !reflect.DeepEqual(p.Thresholds.MinPerCategory, wantMin) {
		t.Fatalf("min per category = %v, want %v", p.Thresholds.MinPerCategory, wantMin)
	}
}

func TestLoadPolicyHelpers(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, testPolicyYAML))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	specs := p.TableSpecs()
	if len(specs) != 2 || specs["catalog"].Table != "products" {
		t.Fatalf("table specs = %v", specs)
	}

	ttls := p.TTLPolicies()
	if len(ttls) != 2 {
		t.Fatalf("ttl policies = %v", ttls)
	}

	req := p.RequiredFields()
	if !reflect.DeepEqual(req, map[Category][]string{CategoryCatalog: {"name"}}) {
		t.Fatalf("required fields = %v", req)
	}

	// Canonical order, not map iteration order.
	if names := p.CategoryNames(); !reflect.DeepEqual(names, []Category{CategoryCatalog, CategoryReference}) {
		t.Fatalf("category names = %v", names)
	}
}

func TestLoadPolicyDefaultsDurations(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, `
categories:
  users:
    table: accounts
    idColumn: id
    baseTTL: 30m
`))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.QueryTimeout != 10*time.Second || p.WriteTimeout != 5*time.Second || p.GracePeriod != 2*time.Minute {
		t.Fatalf("default durations = {%v %v %v}", p.QueryTimeout, p.WriteTimeout, p.GracePeriod)
	}
}

func TestLoadPolicyRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing file is rejected": "", // sentinel, handled below
		"no categories": `
defaults:
  batchSize: 10
`,
		"unknown category": `
categories:
  widgets:
    table: w
    idColumn: id
    baseTTL: 1h
`,
		"missing table": `
categories:
  catalog:
    idColumn: id
    baseTTL: 1h
`,
		"missing baseTTL": `
categories:
  catalog:
    table: products
    idColumn: sku
`,
		"bad duration": `
categories:
  catalog:
    table: products
    idColumn: sku
    baseTTL: soon
`,
		"max below base": `
categories:
  catalog:
    table: products
    idColumn: sku
    baseTTL: 2h
    maxTTL: 1h
`,
	}

	for name, yaml := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if yaml != "" {
				path = writePolicy(t, yaml)
			}
			if _, err := LoadPolicy(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
