// Package predict loads a compiled model library and drives batched parallel
// inference through its exported predict() entry point.
package predict

import (
	"github.com/ebitengine/purego"

	"github.com/tarstars/tree_codegen/tcerr"
)

//SharedLibrary wraps a dlopen handle. Function pointers resolved from it must
//not outlive the handle.
type SharedLibrary struct {
	handle  uintptr
	libpath string
}

//OpenSharedLibrary loads a dynamic shared library from disk.
func OpenSharedLibrary(libpath string) (*SharedLibrary, error) {
	handle, err := purego.Dlopen(libpath, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, tcerr.Wrapf(tcerr.KindABI, err, "failed to load dynamic shared library `%s'", libpath)
	}
	return &SharedLibrary{handle: handle, libpath: libpath}, nil
}

//LoadFunction resolves a symbol and binds it to the Go function prototype
//pointed to by fptr.
func (lib *SharedLibrary) LoadFunction(fptr interface{}, name string) error {
	addr, err := purego.Dlsym(lib.handle, name)
	if err != nil || addr == 0 {
		return tcerr.Errorf(tcerr.KindABI,
			"dynamic shared library `%s' does not contain a function %s()", lib.libpath, name)
	}
	purego.RegisterFunc(fptr, addr)
	return nil
}

//Close releases the library handle.
func (lib *SharedLibrary) Close() error {
	if lib.handle == 0 {
		return nil
	}
	err := purego.Dlclose(lib.handle)
	lib.handle = 0
	return tcerr.Wrapf(tcerr.KindABI, err, "failed to unload `%s'", lib.libpath)
}
