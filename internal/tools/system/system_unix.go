//go:build linux || darwin

package system

import "golang.org/x/sys/unix"

func kernelInfo() *KernelInfo {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return nil
	}
	return &KernelInfo{
		Name:    unix.ByteSliceToString(u.Sysname[:]),
		Release: unix.ByteSliceToString(u.Release[:]),
		Version: unix.ByteSliceToString(u.Version[:]),
		Machine: unix.ByteSliceToString(u.Machine[:]),
	}
}

func diskUsage(path string) (total, free uint64, ok bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, false
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, true
}
