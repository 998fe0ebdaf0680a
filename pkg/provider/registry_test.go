package provider

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takehaya/natperf/pkg/stream"
)

func emptyProvider() Provider {
	return Func(func(direction int, _ Options) ([]*stream.Stream, error) {
		if err := ValidateDirection(direction); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("b", emptyProvider))
	require.NoError(t, r.Register("a", emptyProvider))

	p, err := r.Lookup("a")
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("nat", emptyProvider))
	err := r.Register("nat", emptyProvider)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Contains(t, err.Error(), `"nat"`)
}

func TestRegistry_Register_Invalid(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register("", emptyProvider))
	assert.Error(t, r.Register("nil", nil))
	assert.Empty(t, r.Names())
}

func TestRegistry_Lookup_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Lookup_NilProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("broken", func() Provider { return nil }))

	_, err := r.Lookup("broken")
	assert.ErrorContains(t, err, "factory returned nil")
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("p%02d", i)
			assert.NoError(t, r.Register(name, emptyProvider))
			_, err := r.Lookup(name)
			assert.NoError(t, err)
			_ = r.Names()
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Names(), 16)
}

func TestMustRegister_Panics(t *testing.T) {
	name := "provider-test-must-register"
	MustRegister(name, emptyProvider)
	assert.Contains(t, Names(), name)
	assert.Panics(t, func() { MustRegister(name, emptyProvider) })

	p, err := Lookup(name)
	require.NoError(t, err)
	_, err = p.GetStreams(0, nil)
	assert.NoError(t, err)
}

func TestValidateDirection(t *testing.T) {
	tests := []struct {
		direction int
		wantErr   bool
	}{
		{direction: 0},
		{direction: 1},
		{direction: 2, wantErr: true},
		{direction: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.direction), func(t *testing.T) {
			err := ValidateDirection(tt.direction)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDirection)
				return
			}
			assert.NoError(t, err)
		})
	}
}
