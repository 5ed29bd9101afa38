package spectral

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-emotion/logging"
)

// Window is applied to every frame before the FFT.
type Window interface {
	ApplyInPlace(frame []float64) error
	Size() int
}

// STFT computes short-time power spectra. A configured STFT is immutable and
// safe for concurrent use.
type STFT struct {
	fft     *FFT
	window  Window
	nFFT    int
	hopSize int
	center  bool
	logger  logging.Logger
}

// Spectrogram is a power spectrogram laid out Time x Frequency.
type Spectrogram struct {
	Power      [][]float64
	TimeFrames int
	FreqBins   int
	WindowSize int
	HopSize    int
}

// NewSTFT creates an STFT with the given frame and hop size. When center is
// true the signal is zero-padded by nFFT/2 on both sides so frame t is
// centered on sample t*hop.
func NewSTFT(nFFT, hopSize int, window Window, center bool) (*STFT, error) {
	if nFFT <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}
	if window != nil && window.Size() != nFFT {
		return nil, fmt.Errorf("window size (%d) doesn't match FFT size (%d)", window.Size(), nFFT)
	}

	return &STFT{
		fft:     NewFFT(),
		window:  window,
		nFFT:    nFFT,
		hopSize: hopSize,
		center:  center,
		logger: logging.WithFields(logging.Fields{
			"component": "stft",
		}),
	}, nil
}

// NumFrames returns how many frames a signal of length n produces.
func (s *STFT) NumFrames(n int) int {
	if s.center {
		return 1 + n/s.hopSize
	}
	if n < s.nFFT {
		return 0
	}
	return 1 + (n-s.nFFT)/s.hopSize
}

// Power computes |STFT|² with frames processed by a bounded worker pool.
func (s *STFT) Power(signal []float64) (*Spectrogram, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	numFrames := s.NumFrames(len(signal))
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	padded := signal
	if s.center {
		pad := s.nFFT / 2
		padded = make([]float64, len(signal)+2*pad)
		copy(padded[pad:], signal)
	}

	freqBins := s.nFFT/2 + 1
	power := make([][]float64, numFrames)
	for i := range power {
		power[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// reused per worker
			frame := make([]float64, s.nFFT)

			for frameIdx := range jobs {
				start := frameIdx * s.hopSize
				n := copy(frame, padded[start:min(start+s.nFFT, len(padded))])
				clear(frame[n:])

				if s.window != nil {
					if err := s.window.ApplyInPlace(frame); err != nil {
						errs <- fmt.Errorf("frame %d: %w", frameIdx, err)
						return
					}
				}

				s.fft.PowerBins(frame, power[frameIdx])
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}

	s.logger.Debug("power spectrogram computed", logging.Fields{
		"frames":  numFrames,
		"bins":    freqBins,
		"workers": numWorkers,
	})

	return &Spectrogram{
		Power:      power,
		TimeFrames: numFrames,
		FreqBins:   freqBins,
		WindowSize: s.nFFT,
		HopSize:    s.hopSize,
	}, nil
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// Cap medium loads at 8
	if numFrames < 1000 {
		return max(1, min(numCPU, 8))
	}

	return max(1, numCPU)
}
