package types

import (
	"fmt"
	"strings"
)

// UnknownPartition is the fallback value for a partition key that cannot be
// derived from a record.
const UnknownPartition = "unknown"

// Partition column names, in path order.
const (
	PartitionYear    = "year"
	PartitionCountry = "country"
)

// PartitionColumns returns the partition column names in path order.
func PartitionColumns() []string {
	return []string{PartitionYear, PartitionCountry}
}

// PartitionValues are the derived partition keys of a single record.
type PartitionValues struct {
	Year    string `json:"year"`
	Country string `json:"country"`
}

// Unknown returns the fallback partition values.
func Unknown() PartitionValues {
	return PartitionValues{Year: UnknownPartition, Country: UnknownPartition}
}

// Path returns the hive-style path segment, e.g. "year=2021/country=france".
func (p PartitionValues) Path() string {
	return fmt.Sprintf("%s=%s/%s=%s", PartitionYear, p.Year, PartitionCountry, p.Country)
}

// String implements fmt.Stringer.
func (p PartitionValues) String() string {
	return p.Path()
}

// ParsePartitionPath extracts partition values from an object path that
// contains hive-style "year=.../country=..." segments. ok is false when
// either key is missing.
func ParsePartitionPath(objectPath string) (PartitionValues, bool) {
	var pv PartitionValues
	var haveYear, haveCountry bool
	for _, seg := range strings.Split(objectPath, "/") {
		key, value, found := strings.Cut(seg, "=")
		if !found {
			continue
		}
		switch key {
		case PartitionYear:
			pv.Year, haveYear = value, true
		case PartitionCountry:
			pv.Country, haveCountry = value, true
		}
	}
	return pv, haveYear && haveCountry
}
