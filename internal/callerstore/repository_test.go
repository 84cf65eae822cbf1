package callerstore

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNormalizeState(t *testing.T) {
    cases := []struct {
        name string
        in   string
        want string
    }{
        {"already normalized", "maharashtra", "maharashtra"},
        {"mixed case", "Maharashtra", "maharashtra"},
        {"leading and trailing space", "  Karnataka  ", "karnataka"},
        {"empty", "", ""},
        {"only whitespace", "   ", ""},
        {"internal space preserved", "Tamil Nadu", "tamil nadu"},
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            assert.Equal(t, tc.want, NormalizeState(tc.in))
        })
    }
}
