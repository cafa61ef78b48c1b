package i18n

var ptBRMessages = map[Code]string{
	"UNKNOWN":                       "Algo deu errado. Tente novamente.",
	"INVALID_REQUEST":               "Não foi possível ler a solicitação.",
	"NOT_FOUND":                     "O item solicitado não foi encontrado.",
	"STORE_UNAVAILABLE":             "Não foi possível acessar o servidor. Recarregue a página.",
	"SHARED_LIST_NAME_EMPTY":        "Dê um nome para a lista.",
	"SHARED_LIST_ACCESS_DENIED":     "Você não tem acesso a esta lista.",
	"SHARED_LIST_PERMISSION_DENIED": "Você não tem permissão para alterar esta lista.",
	"SHARED_LIST_NOT_COLLABORATOR":  "Apenas colaboradores podem fazer isso.",
	"INVITATION_NOT_FOUND":          "Não há convite pendente para você nesta lista.",
	"TASK_TITLE_EMPTY":              "Dê um título para a tarefa.",
	"TASK_NOT_FOUND":                "Essa tarefa não existe mais.",
	"IDENTITY_GUEST_NOT_ALLOWED":    "Entre com uma conta para usar este recurso.",
	"AUTH_INVALID_CREDENTIALS":      "E-mail ou senha incorretos.",
	"AUTH_SESSION_INVALID":          "Sua sessão terminou. Entre novamente.",
	"ASSISTANT_PROMPT_EMPTY":        "Digite uma mensagem primeiro.",
}
