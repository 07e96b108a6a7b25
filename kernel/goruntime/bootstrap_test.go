package goruntime

import (
	"gopheros/kernel"
	"gopheros/kernel/hat"
	"gopheros/kernel/mem"
	"reflect"
	"testing"
	"unsafe"
)

func TestSysReserve(t *testing.T) {
	defer func() {
		earlyReserveRegionFn = hat.ReserveRegion
	}()
	var reserved bool

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqSize       uintptr
			expRegionSize uintptr
		}{
			// exact multiple of page size
			{100 << mem.PageShift, 100 << mem.PageShift},
		}

		for specIndex, spec := range specs {
			earlyReserveRegionFn = func(rsvSize uintptr) (mem.VirtAddr, *kernel.Error) {
				if rsvSize != spec.expRegionSize {
					t.Errorf("[spec %d] expected reservation size to be %d; got %d", specIndex, spec.expRegionSize, rsvSize)
				}

				return 0xbadf000, nil
			}

			ptr := sysReserve(nil, spec.reqSize, &reserved)
			if uintptr(ptr) == 0 {
				t.Errorf("[spec %d] sysReserve returned 0", specIndex)
				continue
			}
		}
	})

	t.Run("fail", func(t *testing.T) {
		defer func() {
			if err := recover(); err == nil {
				t.Fatal("expected sysReserve to panic")
			}
		}()

		earlyReserveRegionFn = func(rsvSize uintptr) (mem.VirtAddr, *kernel.Error) {
			return 0, &kernel.Error{Module: "test", Message: "consumed available address space"}
		}

		sysReserve(nil, 0xf00, &reserved)
	})
}

func TestSysMap(t *testing.T) {
	defer func() {
		frameAllocFn = pmmAllocFrameForTest
		mapFn = mapFnForTest
	}()

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqAddr         uintptr
			reqSize         uintptr
			expMapCallCount int
		}{
			{100 << mem.PageShift, 4 * uintptr(mem.PageSize), 4},
			{(4 * uintptr(mem.PageSize)) + 1, 4 * uintptr(mem.PageSize), 4},
		}

		for specIndex, spec := range specs {
			var (
				sysStat      uint64
				mapCallCount int
			)

			frameAllocFn = func() (mem.PhysAddr, *kernel.Error) {
				return mem.PhysAddr(0), nil
			}
			mapFn = func(_ mem.VirtAddr, _ mem.PhysAddr, size uintptr, ps hat.PageSize, prot hat.Prot) error {
				if ps != hat.Size4KiB {
					t.Errorf("[spec %d] expected page size Size4KiB; got %v", specIndex, ps)
				}
				if prot != hat.ProtWrite {
					t.Errorf("[spec %d] expected prot ProtWrite; got %v", specIndex, prot)
				}
				mapCallCount++
				return nil
			}

			rsvPtr := sysMap(unsafe.Pointer(spec.reqAddr), spec.reqSize, true, &sysStat)
			if uintptr(rsvPtr) == 0 {
				t.Errorf("[spec %d] expected sysMap to return a non-zero address", specIndex)
			}

			if mapCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected MapPages call count to be %d; got %d", specIndex, spec.expMapCallCount, mapCallCount)
			}
		}
	})

	t.Run("map fails", func(t *testing.T) {
		frameAllocFn = func() (mem.PhysAddr, *kernel.Error) { return mem.PhysAddr(0), nil }
		mapFn = func(_ mem.VirtAddr, _ mem.PhysAddr, _ uintptr, _ hat.PageSize, _ hat.Prot) error {
			return &hat.AlreadyMappedError{}
		}

		var sysStat uint64
		if got := sysMap(unsafe.Pointer(uintptr(0xbadf000)), 1, true, &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysMap to return 0x0 if MapPages returns an error; got 0x%x", uintptr(got))
		}
	})

	t.Run("panic if not reserved", func(t *testing.T) {
		defer func() {
			if err := recover(); err == nil {
				t.Fatal("expected sysMap to panic")
			}
		}()

		sysMap(nil, 0, false, nil)
	})
}

func TestSysAlloc(t *testing.T) {
	defer func() {
		earlyReserveRegionFn = hat.ReserveRegion
		mapFn = mapFnForTest
		memsetFn = memset
		frameAllocFn = pmmAllocFrameForTest
	}()

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqSize         uintptr
			expMapCallCount int
		}{
			{4 * uintptr(mem.PageSize), 4},
			{(4 * uintptr(mem.PageSize)) + 1, 5},
		}

		expRegionStartAddr := mem.VirtAddr(10 * uintptr(mem.PageSize))

		for specIndex, spec := range specs {
			var (
				sysStat         uint64
				mapCallCount    int
				memsetCallCount int
			)

			earlyReserveRegionFn = func(_ uintptr) (mem.VirtAddr, *kernel.Error) {
				return expRegionStartAddr, nil
			}
			frameAllocFn = func() (mem.PhysAddr, *kernel.Error) {
				return mem.PhysAddr(0), nil
			}
			memsetFn = func(_ uintptr, _ byte, _ mem.Size) {
				memsetCallCount++
			}
			mapFn = func(_ mem.VirtAddr, _ mem.PhysAddr, _ uintptr, ps hat.PageSize, prot hat.Prot) error {
				if ps != hat.Size4KiB || prot != hat.ProtWrite {
					t.Errorf("[spec %d] unexpected map args", specIndex)
				}
				mapCallCount++
				return nil
			}

			if got := sysAlloc(spec.reqSize, &sysStat); uintptr(got) != uintptr(expRegionStartAddr) {
				t.Errorf("[spec %d] expected sysAlloc to return address 0x%x; got 0x%x", specIndex, uintptr(expRegionStartAddr), uintptr(got))
			}

			if mapCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected MapPages call count to be %d; got %d", specIndex, spec.expMapCallCount, mapCallCount)
			}
			if memsetCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected memset call count to be %d; got %d", specIndex, spec.expMapCallCount, memsetCallCount)
			}
		}
	})

	t.Run("earlyReserveRegion fails", func(t *testing.T) {
		earlyReserveRegionFn = func(_ uintptr) (mem.VirtAddr, *kernel.Error) {
			return 0, &kernel.Error{Module: "test", Message: "consumed available address space"}
		}

		var sysStat uint64
		if got := sysAlloc(1, &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAlloc to return 0x0 if ReserveRegion returns an error; got 0x%x", uintptr(got))
		}
	})

	t.Run("frame allocation fails", func(t *testing.T) {
		expRegionStartAddr := mem.VirtAddr(10 * uintptr(mem.PageSize))
		earlyReserveRegionFn = func(_ uintptr) (mem.VirtAddr, *kernel.Error) {
			return expRegionStartAddr, nil
		}
		frameAllocFn = func() (mem.PhysAddr, *kernel.Error) {
			return 0, &kernel.Error{Module: "test", Message: "out of memory"}
		}

		var sysStat uint64
		if got := sysAlloc(1, &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAlloc to return 0x0 if AllocFrame returns an error; got 0x%x", uintptr(got))
		}
	})

	t.Run("map fails", func(t *testing.T) {
		expRegionStartAddr := mem.VirtAddr(10 * uintptr(mem.PageSize))
		earlyReserveRegionFn = func(_ uintptr) (mem.VirtAddr, *kernel.Error) {
			return expRegionStartAddr, nil
		}
		frameAllocFn = func() (mem.PhysAddr, *kernel.Error) {
			return mem.PhysAddr(0), nil
		}
		mapFn = func(_ mem.VirtAddr, _ mem.PhysAddr, _ uintptr, _ hat.PageSize, _ hat.Prot) error {
			return &hat.AlreadyMappedError{}
		}

		var sysStat uint64
		if got := sysAlloc(1, &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAlloc to return 0x0 if MapPages returns an error; got 0x%x", uintptr(got))
		}
	})
}

func TestGetRandomData(t *testing.T) {
	sample1 := make([]byte, 128)
	sample2 := make([]byte, 128)

	getRandomData(sample1)
	getRandomData(sample2)

	if reflect.DeepEqual(sample1, sample2) {
		t.Fatal("expected getRandomData to return different values for each invocation")
	}
}

func TestInit(t *testing.T) {
	defer func() {
		mallocInitFn = mallocInit
		algInitFn = algInit
		modulesInitFn = modulesInit
		typeLinksInitFn = typeLinksInit
		itabsInitFn = itabsInit
	}()

	mallocInitFn = func() {}
	algInitFn = func() {}
	modulesInitFn = func() {}
	typeLinksInitFn = func() {}
	itabsInitFn = func() {}

	if err := Init(); err != nil {
		t.Fatal(err)
	}
}

// pmmAllocFrameForTest and mapFnForTest are restored as the defaults between
// subtests; they intentionally panic if ever actually invoked; every subtest
// installs its own stub before exercising code that calls them.
func pmmAllocFrameForTest() (mem.PhysAddr, *kernel.Error) {
	panic("pmmAllocFrameForTest: no stub installed")
}

func mapFnForTest(_ mem.VirtAddr, _ mem.PhysAddr, _ uintptr, _ hat.PageSize, _ hat.Prot) error {
	panic("mapFnForTest: no stub installed")
}
