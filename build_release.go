//go:build mutago_release

package mutago

const debugBuild = false
