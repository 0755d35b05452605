package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClassBridge API",
        "description": "Classroom management backend: branches, subjects, class codes, assignments, submissions and study materials",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Signup, login and token management"},
        {"name": "Branches", "description": "Teacher branch management"},
        {"name": "Subjects", "description": "Subjects and class codes"},
        {"name": "Membership", "description": "Joining subjects and rosters"},
        {"name": "Assignments", "description": "Assignment management"},
        {"name": "Submissions", "description": "Submitting and grading work"},
        {"name": "Materials", "description": "Study material sharing"},
        {"name": "Files", "description": "File uploads and signed downloads"},
        {"name": "Exports", "description": "Gradebook exports"}
    ],
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a teacher or student account",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email and password",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/branches": {
            "get": {
                "tags": ["Branches"],
                "summary": "List owned branches",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Branches"],
                "summary": "Create a branch",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/branches/{id}": {
            "delete": {
                "tags": ["Branches"],
                "summary": "Delete a branch and everything beneath it",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Branch owned by another teacher"}
                }
            }
        },
        "/branches/{id}/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects in a branch",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create a subject with a generated class code",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/subjects/{id}": {
            "get": {
                "tags": ["Subjects"],
                "summary": "Fetch a subject visible to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "delete": {
                "tags": ["Subjects"],
                "summary": "Delete a subject and its dependent records",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/subjects/join": {
            "post": {
                "tags": ["Membership"],
                "summary": "Join a subject by class code",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Joined"},
                    "404": {"description": "Invalid class code"},
                    "409": {"description": "Already joined"}
                }
            }
        },
        "/subjects/{id}/roster": {
            "get": {
                "tags": ["Membership"],
                "summary": "List enrolled students",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/members/{id}": {
            "delete": {
                "tags": ["Membership"],
                "summary": "Remove a student from a subject",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/me/subjects": {
            "get": {
                "tags": ["Membership"],
                "summary": "List subjects the student joined",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/subjects/{id}/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Post an assignment",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/assignments/{id}/submissions": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List submissions for an assignment",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Submissions"],
                "summary": "Submit work for an assignment",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Already submitted"}
                }
            }
        },
        "/assignments/{id}/submissions/me": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Own submission status",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/submissions/{id}/grade": {
            "patch": {
                "tags": ["Submissions"],
                "summary": "Record marks for a submission",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/subjects/{id}/materials": {
            "get": {
                "tags": ["Materials"],
                "summary": "List study materials",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Materials"],
                "summary": "Share a study material",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/materials/{id}": {
            "delete": {
                "tags": ["Materials"],
                "summary": "Delete a study material",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/uploads": {
            "post": {
                "tags": ["Files"],
                "summary": "Upload a file",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/files/{token}": {
            "get": {
                "tags": ["Files"],
                "summary": "Download a file via signed token",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Invalid or expired link"}
                }
            }
        },
        "/subjects/{id}/gradebook": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the gradebook as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
