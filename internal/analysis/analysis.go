// Package analysis groups a schema's tables by naming prefix and business
// category.
package analysis

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"tablekeeper/internal/snowflake"
)

// DefaultLargest is the number of tables shown in the size ranking.
const DefaultLargest = 20

// OtherCategory collects tables no category pattern matches.
const OtherCategory = "Other"

type prefixRule struct {
	prefix      string
	description string
}

// Checked in order; a table counts toward its first matching prefix only.
var prefixRules = []prefixRule{
	{"dimension_", "Dimension tables containing descriptive attributes"},
	{"dim_", "Dimension tables (abbreviated form)"},
	{"fact_", "Fact tables containing metrics and measurements"},
	{"agg_", "Pre-aggregated tables for reporting"},
	{"vw_", "Views"},
	{"stg_", "Staging tables for ETL processes"},
	{"tmp_", "Temporary tables"},
	{"lkp_", "Lookup tables"},
	{"non_rx_", "Non-restaurant related tables"},
	{"temp_", "Temporary tables"},
	{"snapshot_", "Point-in-time snapshot tables"},
}

type categoryRule struct {
	pattern *regexp.Regexp
	name    string
}

var categoryRules = []categoryRule{
	{regexp.MustCompile(`convenience|conv\b`), "Convenience"},
	{regexp.MustCompile(`grocery`), "Grocery"},
	{regexp.MustCompile(`alcohol|liquor|beer|wine`), "Alcohol"},
	{regexp.MustCompile(`retail`), "Retail"},
	{regexp.MustCompile(`pharmacy|rx\b`), "Pharmacy/Rx"},
	{regexp.MustCompile(`dashmart`), "DashMart"},
	{regexp.MustCompile(`pet|petco`), "Pet"},
	{regexp.MustCompile(`flower`), "Flowers"},
	{regexp.MustCompile(`store_tag`), "Store Tagging"},
	{regexp.MustCompile(`order_item`), "Order Items"},
	{regexp.MustCompile(`delivery`), "Deliveries"},
}

// PrefixCount is the number of tables sharing a naming prefix.
type PrefixCount struct {
	Prefix      string
	Count       int
	Description string
}

// Category lists the tables assigned to a business category.
type Category struct {
	Name   string
	Tables []string
}

// Analysis is the breakdown of one schema.
type Analysis struct {
	Database   string
	Schema     string
	Date       time.Time
	Tables     []snowflake.TableStat
	Prefixes   []PrefixCount
	Categories []Category
}

// Analyze classifies tables. Tables are kept largest first.
func Analyze(database, schema string, tables []snowflake.TableStat) *Analysis {
	sorted := append([]snowflake.TableStat(nil), tables...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bytes > sorted[j].Bytes
	})

	return &Analysis{
		Database:   database,
		Schema:     schema,
		Date:       time.Now(),
		Tables:     sorted,
		Prefixes:   Prefixes(sorted),
		Categories: Categories(sorted),
	}
}

// Prefixes counts tables per naming prefix, most common first. Prefixes no
// table uses are omitted.
func Prefixes(tables []snowflake.TableStat) []PrefixCount {
	counts := make([]PrefixCount, len(prefixRules))
	for i, rule := range prefixRules {
		counts[i] = PrefixCount{Prefix: rule.prefix, Description: rule.description}
	}

	for _, t := range tables {
		name := strings.ToLower(t.Name)
		for i, rule := range prefixRules {
			if strings.HasPrefix(name, rule.prefix) {
				counts[i].Count++
				break
			}
		}
	}

	var result []PrefixCount
	for _, c := range counts {
		if c.Count > 0 {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// Categories assigns each table to the first business category whose pattern
// matches its name, or to OtherCategory. Larger categories come first.
func Categories(tables []snowflake.TableStat) []Category {
	byName := make(map[string]*Category)
	var order []string

	for _, t := range tables {
		name := strings.ToLower(t.Name)
		category := OtherCategory
		for _, rule := range categoryRules {
			if rule.pattern.MatchString(name) {
				category = rule.name
				break
			}
		}

		c, ok := byName[category]
		if !ok {
			c = &Category{Name: category}
			byName[category] = c
			order = append(order, category)
		}
		c.Tables = append(c.Tables, t.Name)
	}

	result := make([]Category, 0, len(order))
	for _, name := range order {
		result = append(result, *byName[name])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return len(result[i].Tables) > len(result[j].Tables)
	})
	return result
}

// Largest returns up to n tables, largest first.
func (a *Analysis) Largest(n int) []snowflake.TableStat {
	if n <= 0 || n > len(a.Tables) {
		n = len(a.Tables)
	}
	return a.Tables[:n]
}
