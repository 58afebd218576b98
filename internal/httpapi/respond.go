package httpapi

import (
	"encoding/json"
	"net/http"

	"draftflow/pkg/proto"
	"draftflow/pkg/workflow"
)

func writeJSON(w http.ResponseWriter, status int, env proto.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, proto.OK(data))
}

func writeError(w http.ResponseWriter, err error) {
	code := workflow.ErrorCodeFor(err)
	writeJSON(w, statusForCode(code), proto.Fail(code, err.Error()))
}

func writeFail(w http.ResponseWriter, status int, code proto.ErrorCode, message string) {
	writeJSON(w, status, proto.Fail(code, message))
}

func statusForCode(code proto.ErrorCode) int {
	switch code {
	case proto.CodeValidation:
		return http.StatusBadRequest
	case proto.CodeNotFound:
		return http.StatusNotFound
	case proto.CodeInvalidTransition, proto.CodeAlreadyFinal, proto.CodeAlreadyFirst:
		return http.StatusConflict
	case proto.CodeRetryExhausted:
		return http.StatusBadGateway
	case proto.CodeCircuitOpen, proto.CodeDegraded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
