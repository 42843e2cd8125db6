package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationFunc
}{
	m: make(map[string]ActivationFunc),
}

// activationAliases maps names exported by common training frameworks onto
// registered activations.
var activationAliases = map[string]string{
	"linear": "identity",
	"silu":   "swish",
	"":       "identity",
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation("identity", func(x float64) float64 { return x })
	MustRegisterActivation("relu", func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	})
	MustRegisterActivation("leaky_relu", func(x float64) float64 {
		if x < 0 {
			return 0.3 * x
		}
		return x
	})
	MustRegisterActivation("elu", func(x float64) float64 {
		if x < 0 {
			return math.Expm1(x)
		}
		return x
	})
	MustRegisterActivation("tanh", math.Tanh)
	MustRegisterActivation("sigmoid", sigmoid)
	MustRegisterActivation("softplus", func(x float64) float64 {
		// log(1+e^x) without overflow for large x.
		if x > 30 {
			return x
		}
		return math.Log1p(math.Exp(x))
	})
	MustRegisterActivation("swish", func(x float64) float64 { return x * sigmoid(x) })
	MustRegisterActivation("gelu", func(x float64) float64 {
		return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
	})
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// RegisterActivation adds fn under name. GetActivation tries the lower-cased
// name before the name as registered.
func RegisterActivation(name string, fn ActivationFunc) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return errors.New("activation function is required")
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

// GetActivation resolves name case-insensitively, following aliases such as
// "linear" and "silu".
func GetActivation(name string) (ActivationFunc, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := activationAliases[key]; ok {
		key = alias
	}

	activationRegistry.mu.RLock()
	fn, ok := activationRegistry.m[key]
	if !ok {
		fn, ok = activationRegistry.m[name]
	}
	activationRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]ActivationFunc)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
