package common

// File modes used when writing files
const (
	// FilePermissionSecure is for files holding credentials
	FilePermissionSecure = 0600

	// FilePermissionNormal is for the allowlist, repository and generated docs
	FilePermissionNormal = 0644

	// DirPermissionSecure is for the per-user config directory
	DirPermissionSecure = 0700

	DirPermissionNormal = 0755
)
