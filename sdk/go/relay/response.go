package relay

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const (
	msgNoBody   = "No body was found"
	msgAccepted = "Message accepted!"
)

type messageBody struct {
	Message string `json:"message"`
}

func response(status int, message string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(messageBody{Message: message})
	if err != nil {
		// a struct with one string field always marshals
		status, body = http.StatusInternalServerError, []byte(`{"message":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
