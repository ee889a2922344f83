//go:build !(linux || darwin)

package system

func kernelInfo() *KernelInfo { return nil }

func diskUsage(string) (uint64, uint64, bool) { return 0, 0, false }
