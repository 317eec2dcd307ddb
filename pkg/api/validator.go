package api

import "errors"

// Validator - интерфейс, который могут реализовать DTO.
// Обертка команд вызывает Validate автоматически после Unmarshal.
type Validator interface {
	Validate() error
}

func (p ExecutePayload) Validate() error {
	if p.InteractionID == "" {
		return errors.New("interactionId is required")
	}
	if p.NPCID == "" {
		return errors.New("npcId is required")
	}
	return nil
}

func (p ListPayload) Validate() error {
	if p.LocationID == "" {
		return errors.New("locationId is required")
	}
	return nil
}

func (p RelationshipPayload) Validate() error {
	if p.NPCID == "" {
		return errors.New("npcId is required")
	}
	return nil
}

func (p BeginProgramPayload) Validate() error {
	if p.ProgramID == "" {
		return errors.New("programId is required")
	}
	if p.NPCID == "" {
		return errors.New("npcId is required")
	}
	return nil
}

func (p ChoicePayload) Validate() error {
	if p.ChoiceID == "" {
		return errors.New("choiceId is required")
	}
	return nil
}
