package trackstate

// Derive computes the state of view. It is a pure function of the snapshot:
// the agent is the first participant flagged as an agent, its audio track
// is the first published audio track it owns, and an agent without one gets
// a microphone placeholder.
func Derive(view RoomView) State {
	if view == nil || !view.Connected() {
		return State{UI: Disconnected}
	}

	agent := findAgent(view.Participants())
	track := agentAudioTrack(agent, view.Tracks())

	ui := Waiting
	if !track.IsPlaceholder() {
		ui = Visualizing
	}
	return State{UI: ui, Agent: agent, AgentTrack: track}
}

func findAgent(participants []Participant) *Participant {
	for _, p := range participants {
		if p.IsAgent {
			return &p
		}
	}
	return nil
}

func agentAudioTrack(agent *Participant, tracks []Track) *TrackReference {
	if agent == nil {
		return nil
	}
	for _, t := range tracks {
		if t.ParticipantID == agent.ID && t.Kind == KindAudio && t.Publication != nil {
			return &TrackReference{Participant: *agent, Source: t.Source, Publication: t.Publication}
		}
	}
	return &TrackReference{Participant: *agent, Source: SourceMicrophone}
}
