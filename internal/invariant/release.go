//go:build !debug

package invariant

const failFast = false
