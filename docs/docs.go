// Package docs содержит описание HTTP API в формате Swagger 2.0.
// Сгенерировано по аннотациям обработчиков командой swag init.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/users": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Регистрация пользователя",
                "parameters": [
                    {"description": "Данные пользователя", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/register.Request"}}
                ],
                "responses": {
                    "200": {"description": "Пользователь уже зарегистрирован", "schema": {"$ref": "#/definitions/response.Response"}},
                    "201": {"description": "Пользователь создан", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Некорректный JSON", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/users/{external_id}/access": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Доступ пользователя",
                "parameters": [{"type": "integer", "description": "Идентификатор чата", "name": "external_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Пользователь не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/users/{external_id}/search": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Matches"],
                "summary": "Поиск матчей",
                "parameters": [{"type": "integer", "description": "Идентификатор чата", "name": "external_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "Нет подписки и пробных поисков", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "404": {"description": "Пользователь не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/payments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Создать платёжную ссылку",
                "parameters": [
                    {"description": "Пользователь и тариф", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/paymentcreate.Request"}}
                ],
                "responses": {
                    "201": {"description": "Ссылка создана", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Пользователь не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "422": {"description": "Неизвестный тариф", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "502": {"description": "Ошибка платёжного провайдера", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/payments/{token}/check": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Проверить оплату",
                "parameters": [{"type": "string", "description": "Токен ссылки", "name": "token", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Ссылка не найдена", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/payments/webhook": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["Payments"],
                "summary": "Вебхук платёжного провайдера",
                "parameters": [{"type": "string", "description": "HMAC-SHA256 тела в base64", "name": "X-Api-Signature", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Неверная подпись", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/admin/subscriptions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Выдать подписку",
                "parameters": [
                    {"description": "Пользователь и тариф", "name": "request", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/grant.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Пользователь не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/admin/subscriptions/{username}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Отозвать подписку",
                "parameters": [{"type": "string", "description": "Имя пользователя", "name": "username", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Пользователь не найден", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/admin/stats/weekly": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Недельная статистика",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        }
    },
    "definitions": {
        "grant.Request": {
            "type": "object",
            "required": ["plan", "username"],
            "properties": {"plan": {"type": "string"}, "username": {"type": "string"}}
        },
        "paymentcreate.Request": {
            "type": "object",
            "required": ["external_id", "plan"],
            "properties": {"external_id": {"type": "integer"}, "plan": {"type": "string"}}
        },
        "register.Request": {
            "type": "object",
            "required": ["external_id"],
            "properties": {
                "external_id": {"type": "integer"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid request body"},
                "status": {"type": "string", "example": "Error"}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {"data": {}, "error": {"type": "string"}, "status": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo метаданные документации, доступные для изменения при старте.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Odds Notifier API",
	Description:      "API сервиса уведомлений о матчах с целевыми коэффициентами",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
