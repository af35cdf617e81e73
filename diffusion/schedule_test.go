package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	require.Equal(t, DefaultTrainSteps, table.Len())

	assert.InDelta(t, 0.99915, table.At(0), 1e-9)
	assert.InDelta(t, 0.9982960278, table.At(1), 1e-8)
	assert.InDelta(t, 0.0046600985, table.At(999), 1e-8)

	if DefaultTable() != table {
		t.Error("DefaultTable sollte eine geteilte Instanz liefern")
	}
}

func TestTableAlphasIsCopy(t *testing.T) {
	table := DefaultTable()
	alphas := table.Alphas()
	alphas[0] = 0.5
	if table.At(0) == 0.5 {
		t.Error("Alphas() darf die Tabelle nicht freigeben")
	}
}

func TestNewTableRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		alphas []float64
	}{
		{"zu kurz", []float64{0.9}},
		{"steigend", []float64{0.9, 0.95}},
		{"null", []float64{0.9, 0}},
		{"negativ", []float64{0.9, -0.1}},
		{"groesser eins", []float64{1.1, 0.9}},
		{"NaN", []float64{0.9, math.NaN()}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.alphas)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("Fehler = %v, erwartet ErrInvalidSchedule", err)
			}
		})
	}
}

func TestNewTableCopiesInput(t *testing.T) {
	in := []float64{1, 0.5, 0.25}
	table, err := NewTable(in)
	require.NoError(t, err)
	in[1] = 0.9
	assert.Equal(t, 0.5, table.At(1))
}

func TestNewScaledLinearTableInvalid(t *testing.T) {
	for _, tt := range []struct {
		n           int
		start, stop float64
	}{
		{1, 0.00085, 0.012},
		{1000, 0, 0.012},
		{1000, 0.012, 0.00085},
		{1000, 0.00085, 1},
	} {
		if _, err := NewScaledLinearTable(tt.n, tt.start, tt.stop); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("NewScaledLinearTable(%d, %g, %g) Fehler = %v", tt.n, tt.start, tt.stop, err)
		}
	}
}

func TestSubsample(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		steps       int
		first, last int
		stride      int
	}{
		{1, 1, 1, 999},
		{2, 1, 500, 499},
		{25, 1, 937, 39},
		{50, 1, 932, 19},
		{999, 1, 999, 1},
		{1000, 0, 999, 1},
	}
	for _, tt := range cases {
		s, err := table.Subsample(tt.steps)
		require.NoError(t, err)
		require.Equal(t, tt.steps, s.Len())

		if s.Timesteps[0] != tt.first || s.Timesteps[s.Len()-1] != tt.last {
			t.Errorf("steps=%d: Timesteps [%d..%d], erwartet [%d..%d]",
				tt.steps, s.Timesteps[0], s.Timesteps[s.Len()-1], tt.first, tt.last)
		}
		for i := 1; i < s.Len(); i++ {
			if d := s.Timesteps[i] - s.Timesteps[i-1]; d != tt.stride {
				t.Fatalf("steps=%d: Schrittweite %d bei %d, erwartet %d", tt.steps, d, i, tt.stride)
			}
		}
	}
}

func TestSubsampleTwoSteps(t *testing.T) {
	s, err := DefaultTable().Subsample(2)
	require.NoError(t, err)

	if diff := cmp.Diff([]int{1, 500}, s.Timesteps); diff != "" {
		t.Errorf("Timesteps (-want +got):\n%s", diff)
	}
	ts, a, ap := s.Step(1)
	assert.Equal(t, 500, ts)
	assert.Equal(t, DefaultTable().At(500), a)
	assert.Equal(t, DefaultTable().At(1), ap)
}

func TestSubsampleMonotonic(t *testing.T) {
	table := DefaultTable()
	for n := 1; n <= table.Len(); n++ {
		s, err := table.Subsample(n)
		if err != nil {
			t.Fatalf("Subsample(%d): %v", n, err)
		}
		if s.AlphasPrev[0] != 1.0 {
			t.Fatalf("Subsample(%d): AlphasPrev[0] = %g, erwartet 1.0", n, s.AlphasPrev[0])
		}
		for i := range s.Len() {
			if s.Timesteps[i] < 0 || s.Timesteps[i] >= table.Len() {
				t.Fatalf("Subsample(%d): Timestep %d ausserhalb der Tabelle", n, s.Timesteps[i])
			}
			if i == 0 {
				continue
			}
			if s.Timesteps[i] <= s.Timesteps[i-1] {
				t.Fatalf("Subsample(%d): Timesteps nicht aufsteigend bei %d", n, i)
			}
			if s.Alphas[i] > s.Alphas[i-1] {
				t.Fatalf("Subsample(%d): Alphas steigen bei %d", n, i)
			}
			if s.AlphasPrev[i] != s.Alphas[i-1] {
				t.Fatalf("Subsample(%d): AlphasPrev[%d] != Alphas[%d]", n, i, i-1)
			}
		}
	}
}

func TestSubsampleInvalid(t *testing.T) {
	for _, n := range []int{0, -1, 1001} {
		if _, err := DefaultTable().Subsample(n); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("Subsample(%d) Fehler = %v, erwartet ErrInvalidSchedule", n, err)
		}
	}
}
