package web

// Google JSON API style response structures
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type APIResponse struct {
	APIVersion string         `json:"apiVersion"`
	Data       interface{}    `json:"data,omitempty"`
	Error      *ErrorResponse `json:"error,omitempty"`
}

const apiVersion = "1.0"

func NewDataResponse(data interface{}) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Data:       data,
	}
}

func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
		},
	}
}
