package main

// Screen is one named display endpoint in the deployment. The signaling
// core treats the id as an opaque room key; this list only feeds the picker.
type Screen struct {
	ID   string
	Name string
}

var deploymentScreens = []Screen{
	{ID: "pid1", Name: "PID 1"},
	{ID: "pid2", Name: "PID 2"},
	{ID: "pid3", Name: "PID 3"},
	{ID: "pid4", Name: "PID 4"},
	{ID: "outbound", Name: "Outbound Dock"},
	{ID: "dockclerk", Name: "Dock Clerk"},
}

func screenName(id string) string {
	for _, s := range deploymentScreens {
		if s.ID == id {
			return s.Name
		}
	}
	return id
}
