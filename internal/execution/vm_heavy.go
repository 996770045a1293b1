package execution

import (
	"errors"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/polytorus/polytorus/internal/types"
)

// gasPerHostCall is the flat cost charged for each host import invocation;
// gas metering is required, but the exact cost schedule is an
// implementation choice.
const gasPerHostCall = 50

// HeavyVM runs contract bytecode as a WASM module via wasmer-go, exposing
// six host calls: storage_get/put, log, caller, value, emit_event.
type HeavyVM struct {
	engine *wasmer.Engine
}

// NewHeavyVM constructs a HeavyVM with a fresh wasmer engine.
func NewHeavyVM() *HeavyVM {
	return &HeavyVM{engine: wasmer.NewEngine()}
}

type hostCtx struct {
	mem     *wasmer.Memory
	gas     *GasMeter
	execCtx *Context
	vmCtx   *VMContext
	rec     *Receipt
}

// Execute runs code's "_start" export under vmCtx's gas limit, applying
// storage reads/writes against execCtx's pending overlay.
func (vm *HeavyVM) Execute(code []byte, vmCtx *VMContext, execCtx *Context) (*Receipt, error) {
	rec := &Receipt{TxHash: vmCtx.TxHash, Status: StatusSuccess}
	meter := NewGasMeter(vmCtx.GasLimit)

	store := wasmer.NewStore(vm.engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		rec.Status = StatusContractTrap
		rec.Error = err.Error()
		return rec, nil
	}

	hctx := &hostCtx{gas: meter, execCtx: execCtx, vmCtx: vmCtx, rec: rec}
	imports := registerHost(store, hctx)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		rec.Status = StatusContractTrap
		rec.Error = err.Error()
		return rec, nil
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		rec.Status = StatusContractTrap
		rec.Error = "wasm memory export missing"
		return rec, nil
	}
	hctx.mem = mem

	start, err := instance.Exports.GetFunction("_start")
	if err != nil {
		rec.Status = StatusContractTrap
		rec.Error = "_start function required"
		return rec, nil
	}

	if _, err := start(); err != nil {
		if errors.Is(err, ErrOutOfGas) {
			rec.Status = StatusOutOfGas
		} else if rec.Status == StatusSuccess {
			rec.Status = StatusContractRevert
		}
		rec.Error = err.Error()
	}

	rec.GasUsed = meter.Used()
	return rec, nil
}

func registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	read := func(ptr, ln int32) []byte {
		data := h.mem.Data()[ptr : ptr+ln]
		out := make([]byte, ln)
		copy(out, data)
		return out
	}
	write := func(ptr int32, data []byte) { copy(h.mem.Data()[ptr:], data) }

	i32 := wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32))
	i32x3 := wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32))
	i32x4 := wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32))
	none := wasmer.NewValueTypes()

	storageGet := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x3, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.gas.Consume(gasPerHostCall); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			kPtr, kLen, dPtr := args[0].I32(), args[1].I32(), args[2].I32()
			key := read(kPtr, kLen)
			val, ok := h.execCtx.ContractStorageGet(h.vmCtx.Contract, key)
			if !ok {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			write(dPtr, val)
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		})

	storagePut := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x4, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.gas.Consume(gasPerHostCall); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			kPtr, kLen, vPtr, vLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			key := read(kPtr, kLen)
			val := read(vPtr, vLen)
			h.execCtx.ContractStoragePut(h.vmCtx.Contract, key, val)
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	logFn := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x4, none),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.gas.Consume(gasPerHostCall); err != nil {
				return []wasmer.Value{}, nil
			}
			tPtr, tLen, dPtr, dLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			topic := string(read(tPtr, tLen))
			data := read(dPtr, dLen)
			h.execCtx.emitEvent(Event{Name: "log:" + topic, Payload: data})
			return []wasmer.Value{}, nil
		})

	emitEvent := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x4, none),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.gas.Consume(gasPerHostCall); err != nil {
				return []wasmer.Value{}, nil
			}
			nPtr, nLen, pPtr, pLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			name := string(read(nPtr, nLen))
			payload := read(pPtr, pLen)
			h.execCtx.emitEvent(Event{Name: name, Payload: payload})
			return []wasmer.Value{}, nil
		})

	caller := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			dPtr := args[0].I32()
			write(dPtr, h.vmCtx.Caller[:])
			return []wasmer.Value{wasmer.NewI32(int32(types.AddressSize))}, nil
		})

	value := wasmer.NewFunction(store, wasmer.NewFunctionType(none, wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI64(int64(h.vmCtx.Value))}, nil
		})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"storage_get": storageGet,
		"storage_put": storagePut,
		"log":         logFn,
		"emit_event":  emitEvent,
		"caller":      caller,
		"value":       value,
	})
	return imports
}
