package spectral

import (
	"math"
)

// DBConfig controls power to decibel conversion.
type DBConfig struct {
	Amin  float64 // floor applied to power and reference before log10
	TopDB float64 // dynamic range kept below the peak; <= 0 disables
}

// DefaultDBConfig returns amin 1e-10 and an 80 dB range.
func DefaultDBConfig() DBConfig {
	return DBConfig{Amin: 1e-10, TopDB: 80}
}

// PowerToDB converts a power matrix to dB relative to its own maximum, so the
// loudest cell maps to 0 dB. An all-zero matrix maps to all zeros.
// The returned matrix is newly allocated.
func PowerToDB(power [][]float64, cfg DBConfig) [][]float64 {
	ref := 0.0
	for _, row := range power {
		for _, v := range row {
			ref = math.Max(ref, v)
		}
	}
	refDB := 10 * math.Log10(math.Max(cfg.Amin, ref))

	peak := math.Inf(-1)
	out := make([][]float64, len(power))
	for i, row := range power {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			db := 10*math.Log10(math.Max(cfg.Amin, v)) - refDB
			out[i][j] = db
			peak = math.Max(peak, db)
		}
	}

	if cfg.TopDB > 0 {
		floor := peak - cfg.TopDB
		for _, row := range out {
			for j, v := range row {
				if v < floor {
					row[j] = floor
				}
			}
		}
	}

	return out
}
