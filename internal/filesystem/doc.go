/*
Package filesystem wraps os.Stat, os.Open and os.ReadDir with retry logic for
stale file handle errors (ESTALE), which show up when the photo library lives
on an NFS or SMB mount and the server replaces a file underneath a client.

Only ESTALE triggers a retry. Every other error is returned immediately, so
a missing file still reports fs.ErrNotExist on the first attempt.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Retries back off exponentially from InitialBackoff up to MaxBackoff. Metrics
are labeled with the volume a path belongs to, as resolved by the
VolumeResolver installed with SetDefaultVolumeResolver.
*/
package filesystem
