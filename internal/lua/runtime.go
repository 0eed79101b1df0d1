package lua

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/cadence/internal/models"
)

// Runtime evaluates run type definition scripts in a sandboxed environment.
// A script declares run types by calling runtype{...} any number of times:
//
//	runtype {
//	  id = "nightly",
//	  steps = {
//	    { at = 40, step = "sync", kind = "succeed", logs = { "synced" } },
//	    { at = 80, step = "sync", kind = "block", reason = "source offline", fatal = true },
//	  },
//	  insights = { { when_done = { "sync" }, title = "Sync healthy" } },
//	}
type Runtime struct {
	types []*models.RunType
	logs  []string
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

// LoadRunTypes runs the script at path and returns the run types it declared.
func LoadRunTypes(path string) ([]*models.RunType, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	r := NewRuntime()
	if err := r.Execute(string(script)); err != nil {
		return nil, err
	}
	return r.RunTypes(), nil
}

// Execute runs script and collects its runtype declarations.
func (r *Runtime) Execute(script string) error {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(script); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// RunTypes returns the run types declared so far.
func (r *Runtime) RunTypes() []*models.RunType {
	return r.types
}

// GetLogs returns the lines passed to log() by the script.
func (r *Runtime) GetLogs() []string {
	return r.logs
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Step tables must be reproducible
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *Runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("runtype", L.NewFunction(r.luaRunType))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
}

// luaRunType implements the runtype{...} API
func (r *Runtime) luaRunType(L *lua.LState) int {
	tbl := L.CheckTable(1)

	rt := &models.RunType{
		ID:          stringField(tbl, "id"),
		Name:        stringField(tbl, "name"),
		Description: stringField(tbl, "description"),
	}
	if rt.ID == "" {
		L.ArgError(1, "runtype requires an id")
		return 0
	}

	if steps, ok := tbl.RawGetString("steps").(*lua.LTable); ok {
		for i := 1; i <= steps.Len(); i++ {
			st, ok := steps.RawGetInt(i).(*lua.LTable)
			if !ok {
				L.RaiseError("runtype %s: step %d is not a table", rt.ID, i)
				return 0
			}
			rt.Steps = append(rt.Steps, r.tableToStep(st))
		}
	}

	if insights, ok := tbl.RawGetString("insights").(*lua.LTable); ok {
		for i := 1; i <= insights.Len(); i++ {
			it, ok := insights.RawGetInt(i).(*lua.LTable)
			if !ok {
				L.RaiseError("runtype %s: insight %d is not a table", rt.ID, i)
				return 0
			}
			rt.Insights = append(rt.Insights, &models.InsightRule{
				WhenDone: stringList(it, "when_done"),
				Title:    stringField(it, "title"),
				Detail:   stringField(it, "detail"),
			})
		}
	}

	r.types = append(r.types, rt)
	return 0
}

func (r *Runtime) tableToStep(tbl *lua.LTable) *models.StepSpec {
	return &models.StepSpec{
		Threshold: int(lua.LVAsNumber(tbl.RawGetString("at"))),
		Step:      stringField(tbl, "step"),
		Kind:      models.StepKind(stringField(tbl, "kind")),
		Fatal:     lua.LVAsBool(tbl.RawGetString("fatal")),
		Outcome: models.Outcome{
			Logs:     stringList(tbl, "logs"),
			Evidence: stringList(tbl, "evidence"),
			Reason:   stringField(tbl, "reason"),
			Action:   stringField(tbl, "action"),
		},
	}
}

// luaLog implements the log(message) API
func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.logs = append(r.logs, message)
	return 0
}

func stringField(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if v == lua.LNil {
		return ""
	}
	return lua.LVAsString(v)
}

func stringList(tbl *lua.LTable, key string) []string {
	list, ok := tbl.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	for i := 1; i <= list.Len(); i++ {
		out = append(out, lua.LVAsString(list.RawGetInt(i)))
	}
	return out
}

// IsLuaFile checks if a file is a Lua run type script
func IsLuaFile(path string) bool {
	return filepath.Ext(path) == ".lua"
}
