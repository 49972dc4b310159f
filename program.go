package ilpatch

import (
	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il/asm"
)

// Load defines every routine of prog and registers its attachments. The
// patches take effect on the next Apply.
func (m *Manager) Load(prog *asm.Program) error {
	for _, r := range prog.Routines {
		if err := m.Define(r.Method, r.Body); err != nil {
			return err
		}
	}
	for _, a := range prog.Attachments {
		coll := m.Collection(a.Target)
		if coll == nil {
			return errors.New(errors.PhaseInstall, errors.KindNotFound).
				Routine(a.Target.String()).
				Patch(a.Patch.String()).
				Detail("line %d: patch target has no body", a.Line).
				Build()
		}
		coll.Add(a.Patch)
	}
	return nil
}
