//go:build !dev && !testing

package build

// Release and DEBUG are compile-time switches that other packages in this
// module use to tune constants (see e.g. chunkstore's lockTimeout)
// and to decide whether Critical/Severe should panic. The standard build is
// the one shipped to operators.
const (
	Release = "standard"
	DEBUG   = false
)
