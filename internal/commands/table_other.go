//go:build !linux && !darwin && !windows

package commands

// platformTable is empty where no desktop tooling is known; hooks still work.
func platformTable() Table {
	return Table{}
}
