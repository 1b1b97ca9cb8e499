package component

// ControllerScript drives a CharacterController from a tengo script. The
// script defines `update(engine, state)`; Source, when set, is used instead of
// reading Path.
type ControllerScript struct {
	Path   string
	Source string
}

var ControllerScriptComponent = NewComponent[ControllerScript]()
