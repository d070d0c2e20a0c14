// Package types provides the core data model shared across the flowcore
// engine. This package has ZERO dependencies on other flowcore packages to
// avoid circular imports. All other packages should import types from here.
package types
