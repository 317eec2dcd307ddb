package engine

import "time"

// Config хранит параметры запуска движка симуляции.
type Config struct {
	// TickRate - период глобального тик-драйвера (только real-time миры).
	TickRate time.Duration

	// TimeScale - сколько симулированных секунд проходит за одну
	// wall-секунду в real-time мире.
	TimeScale float64

	// BackgroundCadence - дефолтный каданс background-NPC
	// (каждый N-й тик), если профиль мира его не задает.
	BackgroundCadence int

	// DormantEvery - dormant-NPC обновляются раз в столько тиков.
	// 0 = только по внешним событиям.
	DormantEvery int

	// UpdateCap - максимум NPC-обновлений за один проход.
	// Переполнение откладывается с приоритетом на следующий проход.
	UpdateCap int

	// TurnSeconds - дефолтная длительность хода turn-based мира.
	TurnSeconds float64

	// TensionDecayPerHour - скорость остывания tension в фоновой симуляции.
	TensionDecayPerHour float64
}

// NewConfig создает конфиг по умолчанию.
func NewConfig() Config {
	return Config{
		TickRate:            time.Second,
		TimeScale:           60, // 1 wall-секунда = 1 игровая минута
		BackgroundCadence:   4,
		DormantEvery:        0,
		UpdateCap:           32,
		TurnSeconds:         1800, // полчаса игрового времени за ход
		TensionDecayPerHour: 2,
	}
}
