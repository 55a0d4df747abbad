package container

import (
	"go.uber.org/zap"

	app "retina-bot/internal/application"
	"retina-bot/internal/domain/port"
)

type Container struct {
	OperatorService *app.OperatorService
	WorkflowService *app.WorkflowService
	History         port.HistoryReader
}

func New(operatorRepo port.OperatorRepository, services app.Services, history port.HistoryReader, logger *zap.Logger) *Container {
	operatorService := app.NewOperatorService(operatorRepo)
	workflowService := app.NewWorkflowService(services, logger)

	return &Container{
		OperatorService: operatorService,
		WorkflowService: workflowService,
		History:         history,
	}
}
