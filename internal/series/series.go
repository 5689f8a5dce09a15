package series

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Alias1177/MoexSignal/models"
)

// DefaultCapacity is the live window size per instrument
const DefaultCapacity = 100

var (
	ErrInvalidCandle = errors.New("invalid candle")
	ErrOutOfOrder    = errors.New("candle is older than the newest one")
)

// PriceSeries is a rolling window of candles for one instrument, oldest first
type PriceSeries struct {
	mu       sync.RWMutex
	candles  []models.Candle
	capacity int
}

// NewPriceSeries creates an empty window; non-positive capacity falls back to the default
func NewPriceSeries(capacity int) *PriceSeries {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PriceSeries{
		candles:  make([]models.Candle, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a candle. A candle with the newest timestamp replaces it,
// which is how an in-progress candle gets updated.
func (s *PriceSeries) Add(candle models.Candle) error {
	if err := validate(candle); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.candles); n > 0 {
		last := s.candles[n-1]
		switch {
		case candle.Timestamp.Equal(last.Timestamp):
			s.candles[n-1] = candle
			return nil
		case candle.Timestamp.Before(last.Timestamp):
			return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
				candle.Timestamp.Format("2006-01-02 15:04:05"), last.Timestamp.Format("2006-01-02 15:04:05"))
		}
	}

	s.candles = append(s.candles, candle)

	// remove oldest candle if window size has been exceeded
	if len(s.candles) > s.capacity {
		copy(s.candles, s.candles[1:])
		s.candles = s.candles[:len(s.candles)-1]
	}

	return nil
}

// AddAll adds candles in order and skips the ones already covered by the window.
// Returns the number of candles accepted.
func (s *PriceSeries) AddAll(candles []models.Candle) (int, error) {
	added := 0
	for _, candle := range candles {
		err := s.Add(candle)
		if errors.Is(err, ErrOutOfOrder) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func validate(candle models.Candle) error {
	if candle.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidCandle)
	}
	if candle.Close <= 0 || candle.High <= 0 || candle.Low <= 0 {
		return fmt.Errorf("%w: non-positive price", ErrInvalidCandle)
	}
	if candle.Low > candle.High {
		return fmt.Errorf("%w: low %.4f above high %.4f", ErrInvalidCandle, candle.Low, candle.High)
	}
	return nil
}

// Candles returns a copy of the window
func (s *PriceSeries) Candles() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]models.Candle, len(s.candles))
	copy(snapshot, s.candles)
	return snapshot
}

// Closes returns close prices, newest last
func (s *PriceSeries) Closes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closes := make([]float64, len(s.candles))
	for i, candle := range s.candles {
		closes[i] = candle.Close
	}
	return closes
}

func (s *PriceSeries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

func (s *PriceSeries) Capacity() int {
	return s.capacity
}

// Last returns the newest candle
func (s *PriceSeries) Last() (models.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.candles) == 0 {
		return models.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
