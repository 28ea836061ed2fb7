package view

import "cvswatch/internal/domain"

// Panel is the Devices view. Ready is false until the first commit, when
// the view shows a loading indicator instead of cards.
type Panel struct {
	Ready        bool                   `json:"ready"`
	Cards        []domain.DeviceReading `json:"cards"`
	Disconnected []string               `json:"disconnected"`
}

// DevicePanel returns a card per connected sensor class, in class order
func DevicePanel(snap *domain.Snapshot) Panel {
	panel := Panel{
		Cards:        []domain.DeviceReading{},
		Disconnected: []string{},
	}
	if snap == nil {
		return panel
	}
	panel.Ready = snap.Committed()

	for _, d := range snap.Devices {
		if d.Connected {
			panel.Cards = append(panel.Cards, d)
		} else {
			panel.Disconnected = append(panel.Disconnected, d.Class)
		}
	}
	return panel
}
