package compression

import "fmt"

// CompressWith compresses data with the named algorithm. The snapshot
// subsystem always calls this rather than picking an algorithm
// heuristically: a block object's algorithm is a fixed, configured
// setting, and decode must be able to reverse it deterministically.
func (e *CompressionEngine) CompressWith(data []byte, algorithm string) ([]byte, error) {
	if algorithm == "" || algorithm == "none" {
		return data, nil
	}

	e.mutex.RLock()
	algo, exists := e.algorithms[algorithm]
	e.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("compression algorithm %s not found", algorithm)
	}

	compressed, err := algo.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	e.stats.mutex.Lock()
	e.stats.TotalCompressed += int64(len(data))
	e.stats.mutex.Unlock()

	e.monitor.RecordCompression(algorithm, len(data), len(compressed))

	return compressed, nil
}

// Engine is an alias kept for readability at call sites outside this
// package; CompressionEngine is the concrete type.
type Engine = CompressionEngine
